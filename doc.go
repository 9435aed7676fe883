// Package mvccdb is an embedded, in-memory, multi-version OLTP storage
// engine. It provides a transaction manager built over a per-key version
// chain, addressed through an OID indirection table, backed by an ordered
// index (lock-free lookups, per-node locks on insert and remove) with
// phantom protection and reclaimed through
// epoch-based memory management. Four isolation protocols — SI, SSI,
// SSN, and MVOCC — share one transaction descriptor and are selected per
// transaction at Begin.
//
// A minimal program:
//
//	eng, err := mvccdb.NewEngine(mvccdb.DefaultEngineOptions("/tmp/orders.walog"))
//	if err != nil {
//		return err
//	}
//	defer eng.Close()
//
//	table, _ := eng.CreateTable("orders", mvccdb.Ordered)
//
//	tx := eng.Begin(mvccdb.TxnOptions{Protocol: mvccdb.SI})
//	if err := table.Insert(tx, []byte("k1"), []byte("v1"), false); err != nil {
//		tx.Abort()
//	}
//	if err := tx.Commit(); err != nil {
//		var abortErr *mvccdb.AbortError
//		if errors.As(err, &abortErr) {
//			// inspect abortErr.Code
//		}
//	}
package mvccdb
