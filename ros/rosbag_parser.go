// Package ros implements functionality that bridges the gap between recorded ROS sessions and
// the projector.
package ros

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/edaniels/gobag/rosbag"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.viam.com/utils"
)

// ReadBag reads the contents of a rosbag into a gobag data structure.
func ReadBag(filename string) (*rosbag.RosBag, error) {
	//nolint:gosec
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open input file")
	}
	defer utils.UncheckedErrorFunc(f.Close)

	rb := rosbag.NewRosBag()

	if err := rb.Read(f); err != nil {
		return nil, errors.Wrapf(err, "unable to create ros bag, error")
	}

	return rb, nil
}

// AllMessagesForTopic returns the JSON encoding of every message for a specific topic in the ros bag.
func AllMessagesForTopic(rb *rosbag.RosBag, topic string) ([]json.RawMessage, error) {
	all, err := AllMessagesForTopics(rb, topic)
	if err != nil {
		return nil, err
	}
	return all[topic], nil
}

// AllMessagesForTopics is like AllMessagesForTopic but parses the bag once for several topics.
// Every topic must have at least one message. Topics are given as recorded, e.g.
// "/camera/depth/image_raw", and the result is keyed the same way.
func AllMessagesForTopics(rb *rosbag.RosBag, topics ...string) (map[string][]json.RawMessage, error) {
	if err := rb.ParseTopicsToJSON(
		"",
		func(int64) bool { return true },
		func(t string) bool { return lo.Contains(topics, t) },
		false,
	); err != nil {
		return nil, errors.Wrapf(err, "error while parsing bag to JSON")
	}

	all := make(map[string][]json.RawMessage, len(topics))
	for _, topic := range topics {
		msgs := rb.TopicsAsJSON[bagTopicKey(topic)]
		if msgs == nil || msgs.Len() == 0 {
			return nil, errors.Errorf("no messages for topic %s", topic)
		}
		split, err := splitMessages(msgs)
		if err != nil {
			return nil, errors.Wrapf(err, "topic %s", topic)
		}
		all[topic] = split
	}
	return all, nil
}

// bagTopicKey returns the key gobag files a topic's messages under: no leading slash, the
// remaining slashes replaced by underscores, lower cased.
func bagTopicKey(topic string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(topic, "/"), "/", "_"))
}

// splitMessages splits newline delimited JSON messages.
func splitMessages(msgs *bytes.Buffer) ([]json.RawMessage, error) {
	all := []json.RawMessage{}
	for {
		data, err := msgs.ReadBytes('\n')
		if len(bytes.TrimSpace(data)) > 0 {
			if !json.Valid(data) {
				return nil, errors.Errorf("message %d is not valid JSON", len(all))
			}
			all = append(all, json.RawMessage(bytes.TrimSpace(data)))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
	}

	return all, nil
}
