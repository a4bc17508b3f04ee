// Package archive packs cached files into zip archives and delivers them.
//
// Files are split into fixed-size batches. Each batch becomes one archive
// named site-archive-partN.zip (N starting at 1, in batch order). Up to
// MaxConcurrent archives are built and delivered at once. The cache is
// cleared only after every archive was delivered; any failure leaves it
// intact so the export can be retried.
package archive
