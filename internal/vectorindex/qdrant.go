package vectorindex

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/qdrant/go-client/qdrant"
)

// Qdrant deletes points from a qdrant collection.
type Qdrant struct {
	client     *qdrant.Client
	collection string
}

// NewQdrant connects to a qdrant instance at addr ("host:port").
func NewQdrant(addr, collection string) (*Qdrant, error) {
	host, port := parseHostPort(addr, "localhost", 6334)

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	slog.Info("vector index connected", "host", host, "port", port, "collection", collection)
	return &Qdrant{client: client, collection: collection}, nil
}

func (q *Qdrant) DeletePoints(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	points := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		points = append(points, qdrant.NewIDUUID(id))
	}

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(points...),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %d points: %w", len(ids), err)
	}

	return nil
}

func (q *Qdrant) Close() error {
	return q.client.Close()
}

func parseHostPort(addr, defaultHost string, defaultPort int) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return defaultHost, defaultPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, defaultPort
	}
	return host, port
}
