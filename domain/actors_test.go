package domain

import "testing"

func TestIsRelay(t *testing.T) {
	cases := []struct {
		name  string
		actor RemoteActor
		want  bool
	}{
		{"service named relay", RemoteActor{Kind: ActorService, Username: "relay", URI: "https://r.example/users/relay"}, true},
		{"service at /actor", RemoteActor{Kind: ActorService, Username: "system", URI: "https://r.example/actor"}, true},
		{"service at /relay", RemoteActor{Kind: ActorService, Username: "system", URI: "https://r.example/relay"}, true},
		{"plain person", RemoteActor{Kind: ActorPerson, Username: "alice", URI: "https://r.example/users/alice"}, false},
		{"person named relay", RemoteActor{Kind: ActorPerson, Username: "relay", URI: "https://r.example/users/relay"}, false},
		{"group", RemoteActor{Kind: ActorGroup, Username: "community", URI: "https://r.example/c/community"}, false},
	}
	for _, tc := range cases {
		if got := tc.actor.IsRelay(); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestIsGroup(t *testing.T) {
	group := RemoteActor{Kind: ActorGroup}
	if !group.IsGroup() {
		t.Error("Group actor should be a group")
	}
	person := RemoteActor{Kind: ActorPerson}
	if person.IsGroup() {
		t.Error("Person should not be a group")
	}
}
