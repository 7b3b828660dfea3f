// Package walletdb keeps the last known good wallet state on disk so that a
// restarted client has something to show before the first successful sync.
package walletdb

import (
	"bytes"
	"time"

	"github.com/golang/snappy"
	"github.com/pkt-cash/pldwallet/btcutil/er"
	"github.com/pkt-cash/pldwallet/btcutil/event"
	"github.com/pkt-cash/pldwallet/btcutil/lock"
	"github.com/pkt-cash/pldwallet/pktlog/log"
	"github.com/pkt-cash/pldwallet/wallet/walletmodel"
	"github.com/pkt-cash/pldwallet/wallet/walletstate"
	"go.etcd.io/bbolt"
)

var Err er.ErrorType = er.NewErrorType("walletdb.Err")

var (
	ErrNoSnapshot = Err.CodeWithDetail("ErrNoSnapshot",
		"no wallet snapshot has been saved")
	ErrCorrupt = Err.CodeWithDetail("ErrCorrupt",
		"stored wallet snapshot could not be read")
)

var (
	snapshotBucket  = []byte("snapshot")
	keyBalances     = "balances"
	keyTransactions = "transactions"
	keyReceived     = "received"
)

// DB is a snapshot file. Values are the wire JSON of the records,
// compressed with snappy.
type DB struct {
	db *bbolt.DB
	// last value written per key, compressed
	last lock.GenMutex[map[string][]byte]
}

// Open opens or creates the snapshot file at path.
func Open(path string) (*DB, er.R) {
	db, err := er.E1(bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second}))
	if err != nil {
		return nil, err
	}
	last := map[string][]byte{}
	if err := er.E(db.Update(func(tx *bbolt.Tx) error {
		b, e := tx.CreateBucketIfNotExists(snapshotBucket)
		if e != nil {
			return e
		}
		return b.ForEach(func(k, v []byte) error {
			last[string(k)] = append([]byte(nil), v...)
			return nil
		})
	})); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{
		db:   db,
		last: lock.NewGenMutex(last, "walletdb.last"),
	}, nil
}

func (d *DB) Close() er.R {
	return er.E(d.db.Close())
}

func encodeSnapshot(snap walletstate.Snapshot) (map[string][]byte, er.R) {
	out := map[string][]byte{}
	put := func(key string, v interface{}) er.R {
		js, err := walletmodel.Encode(v)
		if err != nil {
			return err
		}
		out[key] = snappy.Encode(nil, js)
		return nil
	}
	if snap.Balances != nil {
		if err := put(keyBalances, *snap.Balances); err != nil {
			return nil, err
		}
	}
	txns := snap.Transactions
	if txns == nil {
		txns = []walletmodel.Transaction{}
	}
	if err := put(keyTransactions, txns); err != nil {
		return nil, err
	}
	received := snap.ReceivedPayments
	if received == nil {
		received = []walletmodel.ReceivedPayment{}
	}
	if err := put(keyReceived, received); err != nil {
		return nil, err
	}
	return out, nil
}

// Save writes the snapshot. Values which are the same as the last write are
// skipped, wrote is false if nothing needed to be written.
func (d *DB) Save(snap walletstate.Snapshot) (wrote bool, err er.R) {
	enc, err := encodeSnapshot(snap)
	if err != nil {
		return false, err
	}
	err = d.last.In(func(last *map[string][]byte) er.R {
		changed := map[string][]byte{}
		for k, v := range enc {
			if !bytes.Equal((*last)[k], v) {
				changed[k] = v
			}
		}
		if len(changed) == 0 {
			return nil
		}
		if err := er.E(d.db.Update(func(tx *bbolt.Tx) error {
			b := tx.Bucket(snapshotBucket)
			for k, v := range changed {
				if e := b.Put([]byte(k), v); e != nil {
					return e
				}
			}
			return nil
		})); err != nil {
			return err
		}
		for k, v := range changed {
			(*last)[k] = v
		}
		wrote = true
		return nil
	})
	return
}

func readValue(b *bbolt.Bucket, key string) ([]byte, er.R) {
	v := b.Get([]byte(key))
	if v == nil {
		return nil, nil
	}
	js, e := snappy.Decode(nil, v)
	if e != nil {
		return nil, ErrCorrupt.New(key, er.E(e))
	}
	return js, nil
}

// Load reads the saved snapshot, ErrNoSnapshot if nothing was ever saved.
// Connectivity is always Initializing.
func (d *DB) Load() (walletstate.Snapshot, er.R) {
	var snap walletstate.Snapshot
	var err er.R
	e := d.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(snapshotBucket)
		txJs, err0 := readValue(b, keyTransactions)
		if err0 != nil {
			err = err0
			return nil
		}
		if txJs == nil {
			err = ErrNoSnapshot.Default()
			return nil
		}
		if snap.Transactions, err = walletmodel.DecodeTransactions(txJs); err != nil {
			err = ErrCorrupt.New(keyTransactions, err)
			return nil
		}
		if js, err0 := readValue(b, keyBalances); err0 != nil {
			err = err0
			return nil
		} else if js != nil {
			bal, err0 := walletmodel.DecodeBalances(js)
			if err0 != nil {
				err = ErrCorrupt.New(keyBalances, err0)
				return nil
			}
			snap.Balances = &bal
		}
		if js, err0 := readValue(b, keyReceived); err0 != nil {
			err = err0
			return nil
		} else if js != nil {
			if snap.ReceivedPayments, err = walletmodel.DecodeReceivedPayments(js); err != nil {
				err = ErrCorrupt.New(keyReceived, err)
			}
		}
		return nil
	})
	if e != nil {
		return walletstate.Snapshot{}, er.E(e)
	}
	if err != nil {
		return walletstate.Snapshot{}, err
	}
	snap.Connectivity = walletstate.Initializing
	return snap, nil
}

// Attach saves the store's snapshot after every change to the persistent
// part of the state. Save errors are logged.
func (d *DB) Attach(s *walletstate.Store) *event.Hook {
	return s.OnChange(func(c walletstate.Change) {
		switch c.Field {
		case walletstate.FieldConnectivity, walletstate.FieldConnections:
			return
		}
		if wrote, err := d.Save(s.Snapshot()); err != nil {
			log.Warnf("Unable to save wallet snapshot: %s", err.Message())
		} else if wrote {
			log.Debugf("Wallet snapshot saved after %s change", c.Field)
		}
	})
}
