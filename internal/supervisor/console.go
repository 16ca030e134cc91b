/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package supervisor

import (
	"sync"
	"time"
)

// ConsoleLine is a single line of merged server output.
type ConsoleLine struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// Console keeps a bounded in-memory history of server output and fans new
// lines out to live subscribers. Slow subscribers lose lines rather than
// block the reader.
type Console struct {
	mu       sync.Mutex
	lines    []ConsoleLine
	capacity int
	subs     map[int]chan ConsoleLine
	nextSub  int
}

// NewConsole creates a console buffer holding at most capacity lines.
func NewConsole(capacity int) *Console {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Console{
		capacity: capacity,
		subs:     make(map[int]chan ConsoleLine),
	}
}

// Append records a line and delivers it to all subscribers.
func (c *Console) Append(text string) {
	line := ConsoleLine{Timestamp: time.Now(), Text: text}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lines = append(c.lines, line)
	if len(c.lines) > c.capacity {
		c.lines = c.lines[len(c.lines)-c.capacity:]
	}

	for _, ch := range c.subs {
		select {
		case ch <- line:
		default:
			// Subscriber is not keeping up; drop the line for it.
		}
	}
}

// Tail returns up to n most recent lines, oldest first.
func (c *Console) Tail(n int) []ConsoleLine {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n <= 0 || n > len(c.lines) {
		n = len(c.lines)
	}

	out := make([]ConsoleLine, n)
	copy(out, c.lines[len(c.lines)-n:])
	return out
}

// Len returns the number of buffered lines.
func (c *Console) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

// Subscribe registers a live output listener. The returned id must be passed
// to Unsubscribe when the listener goes away.
func (c *Console) Subscribe() (int, <-chan ConsoleLine) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++

	ch := make(chan ConsoleLine, 64)
	c.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (c *Console) Unsubscribe(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ch, ok := c.subs[id]; ok {
		delete(c.subs, id)
		close(ch)
	}
}

// Clear drops the buffered history. Subscribers are unaffected.
func (c *Console) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
}
