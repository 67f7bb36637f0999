// Package session coordinates an upload: one transaction, its batches and
// the per-file outcome of each.
package session

import (
	"sync"
	"sync/atomic"
)

// TxnState is the life cycle of an archive transaction.
type TxnState int

const (
	TxnNotStarted TxnState = iota
	TxnRequested
	TxnActive
	TxnEnding
	TxnEnded
)

func (s TxnState) String() string {
	return [...]string{"not started", "requested", "active", "ending", "ended"}[s]
}

// Transaction is the archive's grouping of batches. Number 0 means not
// started and a negative number means the archive signalled an error.
type Transaction struct {
	Number int64
	State  TxnState
}

// State is the coordinator's position in an upload.
type State int

const (
	Idle State = iota
	Starting
	WaitingForNumber
	Active
	Ending
)

func (s State) String() string {
	return [...]string{"idle", "starting", "waiting for transaction number", "active", "ending"}[s]
}

// Counters is a snapshot of an UploadSession's counters.
type Counters struct {
	FilesFound      int64
	FilesSent       int64
	FilesSuccess    int64
	FilesFail       int64
	BytesSuccess    int64
	BytesFail       int64
	AnonymizeErrors int64
}

// UploadSession holds the mutable state of one operator session.
type UploadSession struct {
	filesFound      atomic.Int64
	filesSent       atomic.Int64
	filesSuccess    atomic.Int64
	filesFail       atomic.Int64
	bytesSuccess    atomic.Int64
	bytesFail       atomic.Int64
	anonymizeErrors atomic.Int64

	mu    sync.Mutex
	txn   Transaction
	state State
}

// NewUploadSession returns an idle session.
func NewUploadSession() *UploadSession {
	return &UploadSession{}
}

// SetFilesFound records the size of the last scan.
func (s *UploadSession) SetFilesFound(n int) {
	s.filesFound.Store(int64(n))
}

// Snapshot reads all counters.
func (s *UploadSession) Snapshot() Counters {
	return Counters{
		FilesFound:      s.filesFound.Load(),
		FilesSent:       s.filesSent.Load(),
		FilesSuccess:    s.filesSuccess.Load(),
		FilesFail:       s.filesFail.Load(),
		BytesSuccess:    s.bytesSuccess.Load(),
		BytesFail:       s.bytesFail.Load(),
		AnonymizeErrors: s.anonymizeErrors.Load(),
	}
}

// Transaction returns the current transaction.
func (s *UploadSession) Transaction() Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txn
}

// State returns the coordinator state.
func (s *UploadSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *UploadSession) set(state State, txn TxnState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.txn.State = txn
}

func (s *UploadSession) setNumber(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txn.Number = n
}

func (s *UploadSession) reconcile(ok bool, files, bytes int64) {
	if ok {
		s.filesSuccess.Add(files)
		s.bytesSuccess.Add(bytes)
		return
	}
	s.filesFail.Add(files)
	s.bytesFail.Add(bytes)
}
