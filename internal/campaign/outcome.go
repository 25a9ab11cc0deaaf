package campaign

// OutcomeKind は各ステージの結果の種類です。
type OutcomeKind int

const (
	// OutcomeOK はそのまま次のステージへ進みます。
	OutcomeOK OutcomeKind = iota
	// OutcomeDegraded は代替手段で処理を続けます。警告として結果に残します。
	OutcomeDegraded
	// OutcomeFatal はジョブを failed にします。
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeDegraded:
		return "degraded"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome はステージの結果です。
type Outcome struct {
	Kind    OutcomeKind
	Warning string
	Err     *Error
}

func ok() Outcome {
	return Outcome{Kind: OutcomeOK}
}

func degraded(warning string) Outcome {
	return Outcome{Kind: OutcomeDegraded, Warning: warning}
}

func fatal(code, message string, err error) Outcome {
	return Outcome{Kind: OutcomeFatal, Err: newError(code, message, err)}
}
