package memcache

import "go.uber.org/zap"

// LogRecord is one command-log entry: spec §4.F's klog contract. A record
// is emitted for every request, not just successful ones, so operators can
// reconstruct traffic shape independent of outcome.
type LogRecord struct {
	Verb         Verb
	Key          string
	Flags        uint32
	TTL          int32
	Size         int
	Result       ResultCode
	ResponseSize int
}

// Klog emits LogRecords through a sampled logger: one in every SampleRate
// requests is actually logged, matching the "klog may be sampled 1-in-N"
// contract. SampleRate <= 1 disables sampling (every request is logged).
type Klog struct {
	log        *zap.SugaredLogger
	sampleRate int
	counter    int
}

// NewKlog builds a Klog. A nil logger makes every call a no-op, useful for
// workers that don't want command logging enabled.
func NewKlog(log *zap.SugaredLogger, sampleRate int) *Klog {
	if sampleRate < 1 {
		sampleRate = 1
	}
	return &Klog{log: log, sampleRate: sampleRate}
}

// Record emits rec if this call lands on the sampling boundary.
func (k *Klog) Record(rec LogRecord) {
	if k == nil || k.log == nil {
		return
	}
	k.counter++
	if k.counter%k.sampleRate != 0 {
		return
	}
	k.log.Infow("cmd",
		"verb", verbName(rec.Verb),
		"key", rec.Key,
		"flags", rec.Flags,
		"ttl", rec.TTL,
		"size", rec.Size,
		"result", rec.Result,
		"responseSize", rec.ResponseSize,
	)
}

func verbName(v Verb) string {
	switch v {
	case VerbGet:
		return "get"
	case VerbGets:
		return "gets"
	case VerbSet:
		return "set"
	case VerbAdd:
		return "add"
	case VerbReplace:
		return "replace"
	case VerbCAS:
		return "cas"
	case VerbDelete:
		return "delete"
	case VerbIncr:
		return "incr"
	case VerbDecr:
		return "decr"
	case VerbFlushAll:
		return "flush_all"
	case VerbQuit:
		return "quit"
	case VerbAppend:
		return "append"
	case VerbPrepend:
		return "prepend"
	default:
		return "unknown"
	}
}
