package main

import (
	"bytes"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/eigerco/strata/pkg/db"
	"github.com/eigerco/strata/pkg/db/engine"
	"github.com/eigerco/strata/pkg/log"
)

const txnAttempts = 5

var errKeyNotFound = errors.New("key not found")

type command func(c *cli, args []string) error

var commands = map[string]command{
	"get":        (*cli).get,
	"put":        (*cli).put,
	"delete":     (*cli).delete,
	"scan":       (*cli).scan,
	"compact":    (*cli).compact,
	"flush":      (*cli).flush,
	"property":   (*cli).property,
	"approxsize": (*cli).approxSize,
	"txn-put":    (*cli).txnPut,
}

// codec converts between command line arguments and stored bytes.
type codec struct {
	hex bool
}

func (c codec) decode(s string) ([]byte, error) {
	if !c.hex {
		return []byte(s), nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode %q: %w", s, err)
	}
	return b, nil
}

func (c codec) encode(b []byte) string {
	if c.hex {
		return hex.EncodeToString(b)
	}
	return string(b)
}

func (c codec) decodeAll(args []string) ([][]byte, error) {
	out := make([][]byte, len(args))
	for i, a := range args {
		b, err := c.decode(a)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

type cli struct {
	path   string
	cfg    db.DatabaseConfig
	engine engine.Engine
	codec  codec
	out    io.Writer
}

type mode uint8

const (
	readOnly mode = iota
	readWrite
	transactional
)

// with opens the database for the duration of fn.
func (c *cli) with(m mode, fn func(d *db.Database) error) (err error) {
	var d *db.Database
	switch m {
	case readOnly:
		d, err = db.OpenReadOnly(c.path, c.cfg, false, db.WithEngine(c.engine), db.WithLogger(log.Tool))
	case readWrite:
		d, err = db.Open(c.path, c.cfg, db.WithEngine(c.engine), db.WithLogger(log.Tool))
	case transactional:
		d, err = db.OpenTransactional(c.path, c.cfg, db.WithEngine(c.engine), db.WithLogger(log.Tool))
	}
	if err != nil {
		return err
	}
	defer func() {
		if cerr := d.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(d)
}

func exactArgs(name string, args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s: expected %d arguments, got %d", name, n, len(args))
	}
	return nil
}

func (c *cli) get(args []string) error {
	if err := exactArgs("get", args, 1); err != nil {
		return err
	}
	key, err := c.codec.decode(args[0])
	if err != nil {
		return err
	}
	return c.with(readOnly, func(d *db.Database) error {
		value, found, err := d.Get(key, nil)
		if err != nil {
			return err
		}
		if !found {
			return errKeyNotFound
		}
		_, err = fmt.Fprintln(c.out, c.codec.encode(value))
		return err
	})
}

func (c *cli) put(args []string) error {
	if err := exactArgs("put", args, 2); err != nil {
		return err
	}
	kv, err := c.codec.decodeAll(args)
	if err != nil {
		return err
	}
	return c.with(readWrite, func(d *db.Database) error {
		return d.Put(kv[0], kv[1], &db.WriteConfig{Sync: true})
	})
}

func (c *cli) delete(args []string) error {
	if err := exactArgs("delete", args, 1); err != nil {
		return err
	}
	key, err := c.codec.decode(args[0])
	if err != nil {
		return err
	}
	return c.with(readWrite, func(d *db.Database) error {
		return d.Delete(key, &db.WriteConfig{Sync: true})
	})
}

func (c *cli) scan(args []string) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	prefixArg := fs.String("prefix", "", "only keys with this prefix")
	reverse := fs.Bool("reverse", false, "iterate from the last key")
	limit := fs.Int("limit", 0, "stop after this many entries, 0 for no limit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	prefix, err := c.codec.decode(*prefixArg)
	if err != nil {
		return err
	}

	return c.with(readOnly, func(d *db.Database) error {
		n := 0
		var werr error
		visit := func(key, value []byte) bool {
			if _, werr = fmt.Fprintf(c.out, "%s ==> %s\n", c.codec.encode(key), c.codec.encode(value)); werr != nil {
				return false
			}
			n++
			return *limit <= 0 || n < *limit
		}

		var err error
		if *reverse {
			err = scanReverse(d, prefix, visit)
		} else {
			err = d.ForEachWithPrefix(prefix, visit)
		}
		if err != nil {
			return err
		}
		return werr
	})
}

// scanReverse visits the keys starting with prefix from last to first.
func scanReverse(d *db.Database, prefix []byte, visit func(key, value []byte) bool) error {
	it, err := d.NewIterator(nil)
	if err != nil {
		return err
	}
	defer it.Close()

	if end := prefixEnd(prefix); end != nil {
		it.Seek(end)
		if it.Valid() {
			it.Prev()
		} else {
			it.SeekToLast()
		}
	} else {
		it.SeekToLast()
	}

	for ; it.Valid(); it.Prev() {
		key := it.Key()
		if !bytes.HasPrefix(key, prefix) {
			break
		}
		if !visit(key, it.Value()) {
			break
		}
	}
	return it.Err()
}

// prefixEnd returns the first key after every key starting with prefix, or
// nil when no such key exists.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func (c *cli) compact(args []string) error {
	if len(args) > 2 {
		return fmt.Errorf("compact: expected at most 2 arguments, got %d", len(args))
	}
	bounds := make([][]byte, 2)
	for i, a := range args {
		b, err := c.codec.decode(a)
		if err != nil {
			return err
		}
		bounds[i] = b
	}
	return c.with(readWrite, func(d *db.Database) error {
		return d.CompactRange(bounds[0], bounds[1])
	})
}

func (c *cli) flush(args []string) error {
	if err := exactArgs("flush", args, 0); err != nil {
		return err
	}
	return c.with(readWrite, func(d *db.Database) error {
		return d.Flush(true)
	})
}

func (c *cli) property(args []string) error {
	if err := exactArgs("property", args, 1); err != nil {
		return err
	}
	return c.with(readOnly, func(d *db.Database) error {
		value, ok := d.Property(args[0])
		if !ok {
			return fmt.Errorf("property %q is not available", args[0])
		}
		_, err := fmt.Fprintln(c.out, value)
		return err
	})
}

func (c *cli) approxSize(args []string) error {
	if err := exactArgs("approxsize", args, 2); err != nil {
		return err
	}
	bounds, err := c.codec.decodeAll(args)
	if err != nil {
		return err
	}
	return c.with(readOnly, func(d *db.Database) error {
		sizes, err := d.ApproximateSizes(db.Range{Start: bounds[0], Limit: bounds[1]})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(c.out, strconv.FormatUint(sizes[0], 10))
		return err
	})
}

// txnPut writes key through an optimistic transaction that first reads it
// for update, retrying when the commit conflicts with another writer.
func (c *cli) txnPut(args []string) error {
	if err := exactArgs("txn-put", args, 2); err != nil {
		return err
	}
	kv, err := c.codec.decodeAll(args)
	if err != nil {
		return err
	}
	return c.with(transactional, func(d *db.Database) error {
		for attempt := 1; ; attempt++ {
			previous, err := db.InTransaction(d, func(tx *db.Transaction) ([]byte, error) {
				old, _, err := tx.GetForUpdate(kv[0], nil)
				if err != nil {
					return nil, err
				}
				return old, tx.Put(kv[0], kv[1])
			})
			if errors.Is(err, db.ErrTransactionConflict) && attempt < txnAttempts {
				log.Tool.Info().Int("attempt", attempt).Msg("transaction conflict, retrying")
				continue
			}
			if err != nil {
				return err
			}
			if previous != nil {
				_, err = fmt.Fprintf(c.out, "replaced %s\n", c.codec.encode(previous))
			}
			return err
		}
	})
}
