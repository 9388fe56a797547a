package database

import (
	"context"
	"fmt"
)

// Committer keeps a batch under a hard operation ceiling. The caller owns it
// for the length of one loop: stage a write on Batch(), call Add, then Stage.
// The trailing partial batch is only written by Flush.
type Committer struct {
	newBatch func() Batch
	limit    int
	batch    Batch
	ops      int
	commits  int
}

func NewCommitter(newBatch func() Batch, limit int) *Committer {
	if limit <= 0 {
		limit = 1
	}
	return &Committer{
		newBatch: newBatch,
		limit:    limit,
		batch:    newBatch(),
	}
}

func (c *Committer) Batch() Batch { return c.batch }

// Add counts one staged operation.
func (c *Committer) Add() { c.ops++ }

func (c *Committer) Ops() int { return c.ops }

// Commits reports how many batches have been written so far.
func (c *Committer) Commits() int { return c.commits }

// Stage commits the current batch and starts a fresh one once the operation
// count has reached the limit. Below the limit it does nothing.
func (c *Committer) Stage(ctx context.Context) error {
	if c.ops < c.limit {
		return nil
	}
	return c.rotate(ctx)
}

// Reserve flushes early when n more operations would push the open batch
// past the limit, so that a group of related writes is committed together.
// Groups larger than the limit still rotate inside Stage.
func (c *Committer) Reserve(ctx context.Context, n int) error {
	if c.ops == 0 || c.ops+n <= c.limit {
		return nil
	}
	return c.rotate(ctx)
}

// Flush commits whatever is still staged.
func (c *Committer) Flush(ctx context.Context) error {
	if c.ops == 0 {
		return nil
	}
	return c.rotate(ctx)
}

func (c *Committer) rotate(ctx context.Context) error {
	if err := c.batch.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch of %d operations: %w", c.ops, err)
	}
	c.commits++
	c.batch = c.newBatch()
	c.ops = 0
	return nil
}
