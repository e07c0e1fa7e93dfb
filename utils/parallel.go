// Package utils contains small helpers shared across packages.
package utils

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// ParallelFactor controls the max level of parallelization. This might be useful
// to set in tests where too much parallelism actually slows tests down in
// aggregate.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
	quarterProcs := float64(ParallelFactor) * .25
	if quarterProcs > 8 {
		ParallelFactor = int(quarterProcs)
	}
}

type (
	// BeforeParallelGroupWorkFunc executes before any work starts with the calculated group size.
	BeforeParallelGroupWorkFunc func(groupSize int)
	// MemberWorkFunc runs for each work item (member) of a group.
	MemberWorkFunc func(memberNum, workNum int)
	// GroupWorkDoneFunc runs when a single group's work is done; helpful for merge stages.
	GroupWorkDoneFunc func()
	// GroupWorkFunc runs to determine what work members should do, if any.
	GroupWorkFunc func(groupNum, groupSize, from, to int) (MemberWorkFunc, GroupWorkDoneFunc)
)

// GroupWorkParallel splits totalSize work items into contiguous ranges and runs each range on
// its own goroutine, using at most maxGroups groups (ParallelFactor when maxGroups <= 0).
// Every work index in [0, totalSize) is handed to exactly one member. A panic inside a group is
// recovered and returned as an error; the other groups still run to completion.
func GroupWorkParallel(
	ctx context.Context,
	totalSize, maxGroups int,
	before BeforeParallelGroupWorkFunc,
	groupWork GroupWorkFunc,
) error {
	if totalSize <= 0 {
		return ctx.Err()
	}
	if maxGroups <= 0 {
		maxGroups = ParallelFactor
	}
	numGroups := maxGroups
	if numGroups > totalSize {
		numGroups = totalSize
	}
	groupSize := totalSize / numGroups
	extra := totalSize % numGroups

	if before != nil {
		before(numGroups)
	}

	var (
		wait  sync.WaitGroup
		errMu sync.Mutex
		errs  error
	)
	wait.Add(numGroups)
	for groupNum := 0; groupNum < numGroups; groupNum++ {
		groupNumCopy := groupNum
		utils.PanicCapturingGo(func() {
			defer wait.Done()
			defer func() {
				if thePanic := recover(); thePanic != nil {
					errMu.Lock()
					errs = multierr.Combine(errs, fmt.Errorf("panic in work group %d: %v", groupNumCopy, thePanic))
					errMu.Unlock()
				}
			}()
			groupNum := groupNumCopy

			// the first `extra` groups take one more item each
			from := groupNum*groupSize + min(groupNum, extra)
			thisGroupSize := groupSize
			if groupNum < extra {
				thisGroupSize++
			}
			to := from + thisGroupSize
			memberWork, groupWorkDone := groupWork(groupNum, thisGroupSize, from, to)
			if memberWork != nil {
				memberNum := 0
				for workNum := from; workNum < to; workNum++ {
					if ctx.Err() != nil {
						break
					}
					memberWork(memberNum, workNum)
					memberNum++
				}
			}
			if groupWorkDone != nil {
				groupWorkDone()
			}
		})
	}
	wait.Wait()
	return multierr.Combine(errs, ctx.Err())
}
