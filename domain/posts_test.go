package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func testPoll() *Poll {
	poll := &Poll{Id: uuid.New()}
	poll.Options = []PollOption{
		{Id: uuid.New(), Name: "Deep Red", Position: 0},
		{Id: uuid.New(), Name: "blue", Position: 1},
	}
	return poll
}

func TestOptionByName(t *testing.T) {
	poll := testPoll()

	cases := map[string]string{
		"Deep Red":  "Deep Red",
		"deep red":  "Deep Red",
		"DEEPRED":   "Deep Red",
		" deep Red": "Deep Red",
		"Blue":      "blue",
	}
	for input, want := range cases {
		opt := poll.OptionByName(input)
		if opt == nil {
			t.Errorf("%q: expected option %q, got nil", input, want)
			continue
		}
		if opt.Name != want {
			t.Errorf("%q: expected option %q, got %q", input, want, opt.Name)
		}
	}

	if opt := poll.OptionByName("green"); opt != nil {
		t.Errorf("Expected nil for unknown option, got %q", opt.Name)
	}
}

func TestPollClosed(t *testing.T) {
	now := time.Now()
	poll := testPoll()

	if poll.Closed(now) {
		t.Error("Poll without close date should stay open")
	}

	past := now.Add(-time.Minute)
	poll.ClosesAt = &past
	if !poll.Closed(now) {
		t.Error("Poll past its close date should be closed")
	}

	future := now.Add(time.Minute)
	poll.ClosesAt = &future
	if poll.Closed(now) {
		t.Error("Poll before its close date should be open")
	}
}

func TestPostTombstoned(t *testing.T) {
	post := &Post{}
	if post.Tombstoned() {
		t.Error("Fresh post should not be tombstoned")
	}
	now := time.Now()
	post.DeletedAt = &now
	if !post.Tombstoned() {
		t.Error("Post with deleted_at should be tombstoned")
	}
}
