// Package workers sizes bounded worker pools from the available CPUs.
//
// GOMAXPROCS follows the container CPU quota, so counts derived from it
// track the limits the service actually runs under.
//
//	slots := workers.ForCodec(2)  // decode/resize/encode, at most 2
//	writers := workers.ForIO(8)   // storage fan-out
//
// CODEC_CONCURRENCY and INGEST_WORKERS override the computed values.
package workers
