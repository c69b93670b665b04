// Package history keeps an append-only SQLite log of door and light state
// changes, fed by a Recorder subscribed to the garage controller.
//
// Typical wiring:
//
//	store, _ := history.NewStore(db.DB, cfg.MQTT.DeviceID)
//	rec := history.NewRecorder(store, history.RecorderOptions{Retention: 30 * 24 * time.Hour})
//	ctrl.Subscribe(rec)
//	go rec.Run(ctx)
//
//	events, err := store.Recent(ctx, 20)
package history
