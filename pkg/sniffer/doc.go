// Package sniffer runs image sniffing sessions.
//
// A session loads the target page, either with a plain HTTP fetch or in
// headless Chrome, extracts candidate image URLs in page order, resolves
// each to its largest known variant, measures it, and keeps the images at
// or above the size threshold:
//
//	s := sniffer.New(cfg, log)
//	opts, err := sniffer.OptionsFromConfig(cfg)
//	if err != nil {
//	    return err
//	}
//	result, err := s.Sniff(ctx, "https://example.com/gallery", opts, func(msg string, f float64) {
//	    fmt.Printf("%3.0f%% %s\n", f*100, msg)
//	})
//
// Progress is reported at fixed milestones: 0.1 while fetching, 0.3 while
// extracting, 0.5 once candidates are known, then 0.5 to 0.9 as each image
// is checked, and 1.0 when done.
//
// When rendering, the browser's cookies and user agent are captured into
// Result.Fetch before the browser is closed. Sniffer.Download reuses that
// identity so servers that gate images on a session still serve them.
package sniffer
