// Package hive provides one client API over heterogeneous storage backends.
//
// A Registry binds each BackendType to a driver constructor. NewClient
// validates Options and returns a Client whose operations are dispatched to
// that driver:
//
//	reg := backends.Registry()
//	client, err := reg.NewClient(ctx, hive.Options{
//		Backend:            hive.BackendNative,
//		PersistentLocation: "/var/lib/hive",
//	})
//	if err != nil { ... }
//	defer client.Close()
//
//	if err := client.Login(ctx, nil); err != nil { ... }
//	drive, err := client.OpenDrive(ctx)
//	f, err := drive.OpenFile(ctx, "/notes.txt", hive.FlagWriteOnly|hive.FlagCreate|hive.FlagTruncate)
//	f.Write([]byte("hello"))
//	f.Commit(ctx)
//	f.Close()
//
// Client owns the authentication state machine (RAW, LOGINING, LOGINED,
// LOGOUTING). Transitions use compare-and-swap, so concurrent Login calls
// run the driver login exactly once; losers see either success (already
// LOGINED) or ErrWrongState (in progress). Drive and File handles are only
// usable while their Client is LOGINED.
//
// Drivers implement Driver plus any subset of the optional capability
// interfaces in driver.go. A missing capability surfaces as ErrNotSupported.
// File writes are transactional: pending content stays invisible until
// Commit and is dropped by Discard.
package hive
