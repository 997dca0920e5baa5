package engine

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the download engine cannot be reached.
// Connectivity problems never surface as anything else past this boundary.
var ErrUnavailable = errors.New("download engine unavailable")

// Options controls how a download is submitted to the engine.
type Options struct {
	Dir            string
	Out            string
	MaxConnections int
	Split          int
	MaxTries       int
	PerTryTimeout  int // seconds
	MaxPeers       int
	FollowTorrent  bool
}

// Status is a point-in-time snapshot of a download known to the engine.
type Status struct {
	Handle         string
	Dir            string
	Completed      bool
	Failed         bool
	TotalBytes     int64
	CompletedBytes int64
	SpeedBytes     int64
	ErrorMessage   string
	Connections    int
	Seeders        int
	TorrentName    string
	FollowedBy     []string
	Files          []string
}

// Client is the download engine RPC boundary.
type Client interface {
	AddURI(ctx context.Context, uri string, opts Options) (string, error)
	AddTorrent(ctx context.Context, torrent []byte, opts Options) (string, error)
	AddMagnet(ctx context.Context, uri string, opts Options) (string, error)
	TellStatus(ctx context.Context, handle string) (*Status, error)
	Active(ctx context.Context) ([]*Status, error)
	Remove(ctx context.Context, handle string) error
	Version(ctx context.Context) (string, error)
}
