// Copyright 2020-2021 the a0 authors.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package a0 implements an inter-process publish/subscribe and RPC substrate
// built on memory-mapped files acting as shared-memory arenas.
//
// Multiple processes attach to the same arena and exchange variable-size
// frames through a single-writer-many-reader ring log. A robust,
// priority-inheriting mutex and condition variable live inside the arena
// itself, so any process that maps the file can safely append, evict and
// iterate frames without a coordinating daemon.
//
// The package is organized bottom-up:
//
//   - Arena and File: a contiguous byte buffer mmap'd from a regular file.
//   - Mutex and Cond (mutex.go): the robust, priority-inheriting lock
//     living at a fixed offset inside the arena.
//   - Transport and Cursor (transport.go, cursor.go): the ring log
//     discipline - append with eviction, commit, and head/tail iteration.
//   - Packet (packet.go): the self-describing key/value + payload record
//     that gets serialized into each frame.
//   - Rpc and PubSub (rpc.go, pubsub.go): thin framings of Packet over
//     Transport that tag frames by role and correlate request/response ids.
//
// None of this does cross-host networking, grows an arena past its initial
// size (the ring evicts oldest frames instead), or orders frames across
// distinct arenas.
package a0

// vim: foldmethod=marker
