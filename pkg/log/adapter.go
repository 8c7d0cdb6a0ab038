package log

import "github.com/sirupsen/logrus"

// BadgerLogrusAdapter implements badger.Logger on top of a logrus entry.
// Badger's info chatter (compactions, value log replays) is demoted to debug
// so it does not drown out crawl progress.
type BadgerLogrusAdapter struct {
	entry *logrus.Entry
}

// NewBadgerLogrusAdapter creates a new adapter tagged with component=badgerdb
func NewBadgerLogrusAdapter(entry *logrus.Entry) *BadgerLogrusAdapter {
	return &BadgerLogrusAdapter{entry: entry.WithField("component", "badgerdb")}
}

func (l *BadgerLogrusAdapter) Errorf(f string, v ...interface{})   { l.entry.Errorf(f, v...) }
func (l *BadgerLogrusAdapter) Warningf(f string, v ...interface{}) { l.entry.Warnf(f, v...) }
func (l *BadgerLogrusAdapter) Infof(f string, v ...interface{})    { l.entry.Debugf(f, v...) }
func (l *BadgerLogrusAdapter) Debugf(f string, v ...interface{})   { l.entry.Tracef(f, v...) }

// ChromeLogf returns a printf-style sink for chromedp browser logs at debug level
func ChromeLogf(entry *logrus.Entry) func(string, ...interface{}) {
	chrome := entry.WithField("component", "chromedp")
	return func(f string, v ...interface{}) { chrome.Debugf(f, v...) }
}
