package queue

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/google/uuid"
)

const idAppName = "signal-bridge"

// IDGenerator produces record ids of the form
//
//	trade_<unix millis>_<node><seq>_<random>
//
// node is derived from the host machine id, seq is a per-process counter in
// base 36 and random is six hex digits. Two ids from one generator never
// collide; ids from different hosts sharing a queue directory differ by node.
type IDGenerator struct {
	node string
	seq  atomic.Uint64
	now  func() time.Time
}

// NewIDGenerator derives the node tag from the machine id, falling back to
// random bytes when the host does not expose one.
func NewIDGenerator() *IDGenerator {
	node := ""
	if id, err := machineid.ProtectedID(idAppName); err == nil && len(id) >= 4 {
		node = id[:4]
	} else {
		node = randomHex(4)
	}
	return &IDGenerator{node: strings.ToLower(node), now: time.Now}
}

// Next returns a fresh id.
func (g *IDGenerator) Next() string {
	n := g.seq.Add(1)
	return fmt.Sprintf("trade_%d_%s%s_%s",
		g.now().UnixMilli(),
		g.node,
		strconv.FormatUint(n, 36),
		randomHex(6),
	)
}

func randomHex(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}
