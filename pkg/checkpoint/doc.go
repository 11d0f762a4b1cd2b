// Package checkpoint remembers which images a download directory already
// holds, so that a repeated or interrupted download with --resume skips
// them instead of saving name_1 copies.
//
// The checkpoint is a small JSON file inside the directory itself:
//
//	{
//	  "target": "https://example.com/gallery",
//	  "downloaded": {"https://example.com/a.jpg": "a.jpg"},
//	  ...
//	}
//
// Writes go through a temporary file and a rename.
package checkpoint
