package auditcore

import (
	"crypto/sha256"
	"time"

	"github.com/ledgerseal/auditcore/pkg/canonicalize"
	"github.com/ledgerseal/auditcore/pkg/hashchain"
	"github.com/ledgerseal/auditcore/pkg/payload"
)

// EvidenceEventType is the event_type an Evidence submission appends.
const EvidenceEventType = "evidence.submitted"

// Evidence is what an upstream evidence source supplies. Everything
// before this point (upload, virus scanning, content-type sniffing) is
// out of scope: the core only ever sees the already-collected artifact's
// identity.
type Evidence struct {
	ControlID      string
	ArtifactSHA256 string
	Metadata       payload.Value
	CollectedAt    time.Time
}

// LeafHash derives the evidence leaf hash:
// SHA-256(control_id || artifact_sha256 || SHA-256(canonical(metadata)) || collected_at).
// This is the hash that eventually sits under a Merkle leaf once the
// evidence.submitted event carrying it is sealed into a checkpoint.
func (e Evidence) LeafHash() ([32]byte, error) {
	metaCanon, err := canonicalize.JCS(e.Metadata)
	if err != nil {
		return [32]byte{}, err
	}
	metaHash := sha256.Sum256(metaCanon)

	buf := make([]byte, 0, len(e.ControlID)+len(e.ArtifactSHA256)+len(metaHash)+len(timestampBytes(e.CollectedAt)))
	buf = append(buf, e.ControlID...)
	buf = append(buf, e.ArtifactSHA256...)
	buf = append(buf, metaHash[:]...)
	buf = append(buf, timestampBytes(e.CollectedAt)...)

	return sha256.Sum256(buf), nil
}

func timestampBytes(t time.Time) []byte {
	return []byte(t.UTC().Format(evidenceTimestampLayout))
}

const evidenceTimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// SubmitEvidence derives ev's leaf hash and appends an evidence.submitted
// event carrying it plus the identifying fields, binding the evidence
// into the chain at the next sequence.
func (e *Engine) SubmitEvidence(ev Evidence) (hashchain.Record, error) {
	leaf, err := ev.LeafHash()
	if err != nil {
		return hashchain.Record{}, err
	}

	payloadValue := payload.Map(map[string]payload.Value{
		"control_id":      payload.String(ev.ControlID),
		"artifact_sha256": payload.String(ev.ArtifactSHA256),
		"metadata":        ev.Metadata,
		"collected_at":    payload.String(timestampString(ev.CollectedAt)),
		"leaf_hash":       payload.String(hexString(leaf[:])),
	})

	return e.chain.Append(EvidenceEventType, payloadValue, ev.CollectedAt)
}

func timestampString(t time.Time) string {
	return t.UTC().Format(evidenceTimestampLayout)
}

func hexString(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexdigits[v>>4]
		out[i*2+1] = hexdigits[v&0x0f]
	}
	return string(out)
}
