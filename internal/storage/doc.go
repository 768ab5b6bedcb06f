// Package storage provides the minimal persistence layer used by the bot.
//
// Plugins and services store small JSON blobs in named buckets; the layer
// keeps the monitor state, credentials and subscription lists across
// restarts. Three drivers are supported: sqlite (default), bbolt, and a
// dependency-free file snapshot.
package storage
