// Package ledgersync feeds ledger commits into the state store.
//
// A Source delivers Batches in commit order. The Syncer applies each one
// through an Applier, which writes every delta and the commit record in a
// single transaction. When the ledger reorganizes, the Syncer rolls the
// store back to the incoming batch's predecessor and applies it again.
package ledgersync

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/gridstate/internal/model"
	"github.com/roach88/gridstate/internal/store"
)

// Delta is one state change carried by a commit. Exactly one payload field
// matching Kind is set.
type Delta struct {
	Kind model.Kind `json:"kind" yaml:"kind"`
	Op   model.Op   `json:"op" yaml:"op"`

	Agent        *model.Agent        `json:"agent,omitempty" yaml:"agent,omitempty"`
	Organization *model.Organization `json:"organization,omitempty" yaml:"organization,omitempty"`
	Location     *model.Location     `json:"location,omitempty" yaml:"location,omitempty"`
	Product      *model.Product      `json:"product,omitempty" yaml:"product,omitempty"`
	Schema       *model.Schema       `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// Batch is everything a single ledger commit changed, for one service chain.
type Batch struct {
	Commit      model.Commit `json:"commit_num" yaml:"commit_num"`
	CommitID    string       `json:"commit_id" yaml:"commit_id"`
	Predecessor model.Commit `json:"predecessor" yaml:"predecessor"`
	ServiceID   *string      `json:"service_id,omitempty" yaml:"service_id,omitempty"`
	Deltas      []Delta      `json:"deltas" yaml:"deltas"`
}

// IDGenerator produces commit ids for batches that arrive without one.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 commit ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Validate checks the batch shape without touching the store.
func (b Batch) Validate() error {
	if !b.Commit.Valid() {
		return store.NewInvalidInputError("commit", b.Commit.String(), "commit number out of range")
	}
	if b.Predecessor < model.NoCommit || b.Predecessor >= b.Commit {
		return store.NewInvalidInputError("commit", b.Commit.String(),
			"predecessor %d must be below the commit", b.Predecessor)
	}
	for i, d := range b.Deltas {
		if err := d.validate(); err != nil {
			return store.NewInvalidInputError("commit", b.Commit.String(), "delta %d: %v", i, err)
		}
	}
	return nil
}

func (d Delta) validate() error {
	switch d.Op {
	case model.OpAdd, model.OpUpdate, model.OpDelete:
	default:
		return fmt.Errorf("unknown op %q", d.Op)
	}

	set := 0
	for _, present := range []bool{d.Agent != nil, d.Organization != nil, d.Location != nil, d.Product != nil, d.Schema != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("expected exactly one payload, got %d", set)
	}

	var ok bool
	switch d.Kind {
	case model.KindAgent:
		ok = d.Agent != nil
	case model.KindOrganization:
		ok = d.Organization != nil
	case model.KindLocation:
		ok = d.Location != nil
	case model.KindProduct:
		ok = d.Product != nil
	case model.KindSchema:
		ok = d.Schema != nil
	default:
		return fmt.Errorf("unknown kind %q", d.Kind)
	}
	if !ok {
		return fmt.Errorf("payload does not match kind %q", d.Kind)
	}
	return nil
}
