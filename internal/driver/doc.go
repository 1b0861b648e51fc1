// Package driver abstracts the browser automation needed to walk the Bybit
// history-data UI. The Driver interface is the only surface the download
// workflow sees; the chromedp implementation behind it owns the volatile
// parts (the selectors and the page walk) which track the live site and
// change whenever the site does.
package driver
