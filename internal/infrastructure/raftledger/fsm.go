package raftledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/raft"

	"github.com/petmarket/escrow-hub/internal/domain/notification"
	"github.com/petmarket/escrow-hub/internal/ledger"
	"github.com/petmarket/escrow-hub/internal/ledger/memory"
)

type commandOp string

const (
	opCommit      commandOp = "COMMIT"
	opUpdateEvent commandOp = "UPDATE_EVENT"
)

// command is the replicated log entry.
type command struct {
	Op        commandOp           `json:"op"`
	ChangeSet *ledger.ChangeSet   `json:"change_set,omitempty"`
	Event     *notification.Event `json:"event,omitempty"`
	IssuedAt  time.Time           `json:"issued_at"`
}

// fsm applies committed log entries to the local ledger replica. Every
// node runs the same validation, so a rejected change set is rejected
// everywhere and leaves no trace.
type fsm struct {
	state *memory.Store
}

func (f *fsm) Apply(log *raft.Log) interface{} {
	var cmd command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("decode command: %w", err)
	}
	ctx := context.Background()
	switch cmd.Op {
	case opCommit:
		if cmd.ChangeSet == nil {
			return fmt.Errorf("commit without change set")
		}
		return f.state.Commit(ctx, cmd.ChangeSet)
	case opUpdateEvent:
		if cmd.Event == nil {
			return fmt.Errorf("update without event")
		}
		return f.state.UpdateEvent(ctx, cmd.Event)
	default:
		return fmt.Errorf("unknown command %q", cmd.Op)
	}
}

func (f *fsm) Snapshot() (raft.FSMSnapshot, error) {
	data, err := f.state.Marshal()
	if err != nil {
		return nil, err
	}
	return &fsmSnapshot{data: data}, nil
}

func (f *fsm) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return f.state.Unmarshal(data)
}

type fsmSnapshot struct {
	data []byte
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if _, err := sink.Write(s.data); err != nil {
		_ = sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
