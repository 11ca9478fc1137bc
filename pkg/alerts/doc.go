// Package alerts folds raw engine findings into one aggregate per alert
// name and derives the two views stored with a scan: a lightweight summary
// for status polling and an untruncated detailed record for archival.
//
// Risk counts are taken over the grouped set (one per distinct name) while
// TotalOccurrences reports the raw instance volume. The two numbers answer
// different questions and are kept apart.
package alerts
