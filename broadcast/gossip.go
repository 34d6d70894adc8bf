package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Sort: cbor.SortCanonical,
		Time: cbor.TimeUnixMicro,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("broadcast: cbor encoder: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyQuiet,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("broadcast: cbor decoder: %v", err))
	}
}

// EncodeAnnouncement serializes a to CBOR.
func EncodeAnnouncement(a Announcement) ([]byte, error) {
	return encMode.Marshal(a)
}

// DecodeAnnouncement parses a CBOR announcement.
func DecodeAnnouncement(data []byte) (Announcement, error) {
	var a Announcement
	if err := decMode.Unmarshal(data, &a); err != nil {
		return Announcement{}, fmt.Errorf("broadcast: decode announcement: %w", err)
	}
	return a, nil
}

// Gossip publishes announcements to peers over libp2p gossipsub, one
// pubsub topic per announcement topic.
type Gossip struct {
	ctx    context.Context
	ps     *pubsub.PubSub
	prefix string
	now    func() time.Time

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// NewGossip joins the gossipsub network through h. Topic names are
// prefixed with prefix.
func NewGossip(ctx context.Context, h host.Host, prefix string) (*Gossip, error) {
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("broadcast/gossip: start gossipsub: %w", err)
	}
	return &Gossip{
		ctx:    ctx,
		ps:     ps,
		prefix: prefix,
		now:    time.Now,
		topics: make(map[string]*pubsub.Topic),
	}, nil
}

// PublishSticky sends the announcement to the gossip topic. Failures are
// logged.
func (g *Gossip) PublishSticky(topic string, fields Fields) {
	data, err := EncodeAnnouncement(Announcement{Topic: topic, Fields: fields, Time: g.now()})
	if err != nil {
		log.Warnf("gossip %s: encode: %v", topic, err)
		return
	}

	t, err := g.join(topic)
	if err != nil {
		log.Warnf("gossip %s: join: %v", topic, err)
		return
	}
	if err := t.Publish(g.ctx, data); err != nil {
		log.Warnf("gossip %s: publish: %v", topic, err)
	}
}

func (g *Gossip) join(topic string) (*pubsub.Topic, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if t, ok := g.topics[topic]; ok {
		return t, nil
	}
	t, err := g.ps.Join(g.prefix + topic)
	if err != nil {
		return nil, err
	}
	g.topics[topic] = t
	log.Debugf("joined gossip topic %s", g.prefix+topic)
	return t, nil
}

// Close leaves every joined topic.
func (g *Gossip) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var firstErr error
	for name, t := range g.topics {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("broadcast/gossip: close %s: %w", name, err)
		}
	}
	g.topics = make(map[string]*pubsub.Topic)
	return firstErr
}
