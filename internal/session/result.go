package session

// Status, tek bir host işleminin sonucunu sınıflandırır.
// Kilit çakışması toplu işlemi durdurmaz; diğer hatalar durdurur.
type Status int

const (
	StatusOK Status = iota
	StatusConflict
	StatusFailed
)

// Outcome is the typed per-host result. The batch coordinator aggregates by
// inspecting these instead of catching errors.
type Outcome struct {
	Host   string
	Status Status
	Owner  string // set on StatusConflict: who holds the lock
	Err    error  // set on StatusFailed
}

func ok(host string) Outcome {
	return Outcome{Host: host, Status: StatusOK}
}

func conflict(host, owner string) Outcome {
	return Outcome{Host: host, Status: StatusConflict, Owner: owner}
}

func failed(host string, err error) Outcome {
	return Outcome{Host: host, Status: StatusFailed, Err: err}
}
