// Package storage saves selected images to disk.
//
// The storage package handles:
//   - Creating the output directory
//   - Choosing file names, either derived from the URL or ordinal (001.jpg)
//   - Collision-safe naming with _1, _2 suffixes
//   - Streaming each body into a .part file that is renamed on success
//
// Names are reserved with O_CREATE|O_EXCL, so two workers that want the
// same name always end up with different files, and a name already on disk
// from an earlier run is never overwritten.
//
// Usage:
//
//	manager, err := storage.NewManager("images", client, log)
//	if err != nil {
//	    return err
//	}
//	results := manager.DownloadAll(ctx, images, false, 4, nil)
//	ok, total := storage.Summary(results)
package storage
