// Package command implements the dispatcher that turns a parsed request
// frame into an operation against the store or configuration, and
// renders its outcome as a resp.Reply.
package command

import (
	"math"
	"sort"
	"strings"
	"time"

	"redikv/internal/config"
	"redikv/internal/resp"
	"redikv/internal/store"
)

// Dispatcher holds the shared state every command executes against.
type Dispatcher struct {
	Store  *store.Store
	Config config.Config
}

// New builds a Dispatcher over the given store and configuration.
func New(s *store.Store, cfg config.Config) *Dispatcher {
	return &Dispatcher{Store: s, Config: cfg}
}

// Dispatch executes one request frame (command name plus arguments,
// all bulk-string payloads) and returns its reply. Dispatch never
// returns a Go error: every failure, including an empty frame or an
// unknown command, comes back as a resp.Error reply.
func (d *Dispatcher) Dispatch(frame [][]byte) resp.Reply {
	if len(frame) == 0 {
		return resp.Error("ERR empty command")
	}

	name := strings.ToUpper(string(frame[0]))
	args := frame[1:]

	switch name {
	case "PING":
		return d.ping(args)
	case "ECHO":
		return d.echo(args)
	case "SET":
		return d.set(args)
	case "GET":
		return d.get(args)
	case "DEL":
		return d.del(args)
	case "EXISTS":
		return d.exists(args)
	case "TTL":
		return d.ttl(args)
	case "PERSIST":
		return d.persist(args)
	case "CONFIG":
		return d.config(args)
	default:
		return resp.Error("ERR unknown command '" + string(frame[0]) + "'")
	}
}

func (d *Dispatcher) ping(args [][]byte) resp.Reply {
	switch len(args) {
	case 0:
		return resp.SimpleString("PONG")
	case 1:
		return resp.SimpleString(string(args[0]))
	default:
		return resp.Error("ERR wrong number of arguments for 'ping' command")
	}
}

func (d *Dispatcher) echo(args [][]byte) resp.Reply {
	if len(args) != 1 {
		return resp.Error("ERR wrong number of arguments for 'echo' command")
	}
	return resp.SimpleString(string(args[0]))
}

var setArgSpecs = []argSpec{
	{keyword: "PX", kind: argKeywordInt, exclusives: []string{"EX"}},
	{keyword: "EX", kind: argKeywordInt, exclusives: []string{"PX"}},
}

func (d *Dispatcher) set(args [][]byte) resp.Reply {
	if len(args) < 2 {
		return resp.Error("ERR wrong number of arguments for 'set' command")
	}
	key, value := string(args[0]), args[1]

	parsed, err := parseOptionalArgs(args[2:], setArgSpecs)
	if err != nil {
		return resp.Error("ERR " + err.Error())
	}

	var expiresAt int64
	if ms, ok := parsed.hasInt("PX"); ok {
		expiresAt = time.Now().UnixMilli() + ms
	} else if secs, ok := parsed.hasInt("EX"); ok {
		if secs > math.MaxInt64/1000 {
			return resp.Error("ERR invalid expire time in 'set' command")
		}
		expiresAt = time.Now().UnixMilli() + secs*1000
	}

	d.Store.Set(key, store.Value{Data: append([]byte(nil), value...), ExpiresAtMillis: expiresAt})
	return resp.SimpleString("OK")
}

func (d *Dispatcher) get(args [][]byte) resp.Reply {
	if len(args) != 1 {
		return resp.Error("ERR wrong number of arguments for 'get' command")
	}
	v, ok := d.Store.Get(string(args[0]))
	if !ok {
		return resp.Null{}
	}
	return resp.BulkString(v.Data)
}

func (d *Dispatcher) del(args [][]byte) resp.Reply {
	if len(args) == 0 {
		return resp.Error("ERR wrong number of arguments for 'del' command")
	}
	var removed int64
	for _, k := range args {
		if _, ok := d.Store.Delete(string(k)); ok {
			removed++
		}
	}
	return resp.Integer(removed)
}

func (d *Dispatcher) exists(args [][]byte) resp.Reply {
	if len(args) == 0 {
		return resp.Error("ERR wrong number of arguments for 'exists' command")
	}
	var present int64
	for _, k := range args {
		if d.Store.Exists(string(k)) {
			present++
		}
	}
	return resp.Integer(present)
}

func (d *Dispatcher) ttl(args [][]byte) resp.Reply {
	if len(args) != 1 {
		return resp.Error("ERR wrong number of arguments for 'ttl' command")
	}
	v, ok := d.Store.Get(string(args[0]))
	if !ok {
		return resp.Integer(-2)
	}
	if v.ExpiresAtMillis == 0 {
		return resp.Integer(-1)
	}
	remainingMillis := v.ExpiresAtMillis - time.Now().UnixMilli()
	if remainingMillis < 0 {
		remainingMillis = 0
	}
	return resp.Integer(remainingMillis / 1000)
}

func (d *Dispatcher) persist(args [][]byte) resp.Reply {
	if len(args) != 1 {
		return resp.Error("ERR wrong number of arguments for 'persist' command")
	}
	key := string(args[0])
	v, ok := d.Store.Get(key)
	if !ok || v.ExpiresAtMillis == 0 {
		return resp.Integer(0)
	}
	v.ExpiresAtMillis = 0
	d.Store.Set(key, v)
	return resp.Integer(1)
}

func (d *Dispatcher) config(args [][]byte) resp.Reply {
	if len(args) < 2 || strings.ToUpper(string(args[0])) != "GET" {
		return resp.Error("ERR wrong number of arguments for 'config' command")
	}

	seen := make(map[string]bool)
	var keys []string
	for _, raw := range args[1:] {
		k := strings.ToLower(string(raw))
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make(resp.Array, 0, len(keys)*2)
	for _, k := range keys {
		v, ok := d.Config.Lookup(k)
		if !ok {
			continue
		}
		out = append(out, resp.BulkString(k), resp.BulkString(v))
	}
	return out
}
