// Package consumer runs the receive loop: each round long-polls the queue
// once and hands the batch to a Dispatcher, which starts one lease
// supervisor per message without waiting for any of them.
package consumer
