package logger

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"outpost-firmware/pkg/globals"
)

// Retained across reboots so the cause of a forced reset stays readable
// after the restart it triggered.
const maxEntries = 1000

type Entry struct {
	Time time.Time `json:"time"`
	Msg  string    `json:"msg"`
}

type ring struct {
	mu      sync.Mutex
	path    string
	entries []Entry
}

var r *ring

// Init tees the standard logger into a persisted ring buffer at the
// default path. Previous entries are loaded back in.
func Init() {
	InitAt(globals.LogsPath)
}

func InitAt(path string) {
	r = &ring{path: path}
	r.entries = r.load()
	log.SetOutput(io.MultiWriter(os.Stdout, r))
}

func (rg *ring) Write(p []byte) (int, error) {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	rg.entries = append(rg.entries, Entry{Time: time.Now(), Msg: string(p)})
	if n := len(rg.entries); n > maxEntries {
		rg.entries = rg.entries[n-maxEntries:]
	}
	rg.flush()
	return len(p), nil
}

// Recent returns up to n retained entries, newest last.
func Recent(n int) []Entry {
	if r == nil {
		return []Entry{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.entries
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return append([]Entry{}, entries...)
}

func (rg *ring) load() []Entry {
	data, err := os.ReadFile(rg.path)
	if err != nil {
		return []Entry{}
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return []Entry{}
	}
	return entries
}

// flush is best effort: losing the on-disk buffer must never fail a log
// call. Caller holds the lock.
func (rg *ring) flush() {
	data, err := json.Marshal(rg.entries)
	if err != nil {
		return
	}
	os.WriteFile(rg.path, data, 0644)
}
