package pipe

import (
	"context"
	"fmt"

	"github.com/nathanielparke/cannoli/internal/cluster"
	"github.com/nathanielparke/cannoli/internal/command"
	"github.com/nathanielparke/cannoli/internal/dataset"
	"github.com/nathanielparke/cannoli/internal/formats"
)

// Apply pipes every partition of coll through cmd on the cluster's workers.
// Staged files are broadcast first. The first failing partition fails the
// whole call and no partial output is returned.
func Apply[T, U any](ctx context.Context, cl *cluster.Cluster, coll *dataset.Collection[T], cmd *command.Command,
	ser formats.Serializer[T], de formats.Deserializer[U], opts ...Option) (*dataset.Collection[U], error) {
	opts = append([]Option{WithLogger(cl.Logger()), WithJobID(cl.JobID())}, opts...)
	e := New(cmd, ser, de, opts...)

	refs := cmd.Files()
	if err := cl.Broadcast(ctx, refs); err != nil {
		return nil, fmt.Errorf("distribute files: %w", err)
	}

	parts := coll.Partitions()
	results := make([]dataset.Partition[U], len(parts))
	err := cl.Run(ctx, len(parts), func(ctx context.Context, worker, i int) error {
		out, err := e.run(ctx, worker, cl.Substitution(worker, refs), parts[i])
		if err != nil {
			return err
		}
		results[i] = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dataset.FromPartitions(results), nil
}
