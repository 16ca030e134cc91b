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
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The console buffer must never hold more than its capacity, and Tail must
// always return the most recent lines in append order.
func TestProperty_ConsoleBufferBounded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("buffer never exceeds capacity", prop.ForAll(
		func(capacity int, count int) bool {
			c := NewConsole(capacity)
			for i := 0; i < count; i++ {
				c.Append(fmt.Sprintf("line-%d", i))
			}
			return c.Len() <= capacity
		},
		gen.IntRange(1, 50),
		gen.IntRange(0, 200),
	))

	properties.Property("tail returns newest lines in order", prop.ForAll(
		func(capacity int, count int) bool {
			c := NewConsole(capacity)
			for i := 0; i < count; i++ {
				c.Append(fmt.Sprintf("line-%d", i))
			}

			tail := c.Tail(count)
			if len(tail) == 0 {
				return count == 0
			}

			// The last tail entry is always the last appended line.
			if tail[len(tail)-1].Text != fmt.Sprintf("line-%d", count-1) {
				return false
			}

			// Entries are consecutive.
			for i := 1; i < len(tail); i++ {
				prev := tail[i-1].Text
				cur := tail[i].Text
				var p, q int
				fmt.Sscanf(prev, "line-%d", &p)
				fmt.Sscanf(cur, "line-%d", &q)
				if q != p+1 {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 50),
		gen.IntRange(1, 200),
	))

	properties.TestingRun(t)
}

func TestConsoleTailLimits(t *testing.T) {
	c := NewConsole(10)
	for i := 0; i < 5; i++ {
		c.Append(fmt.Sprintf("line-%d", i))
	}

	assert.Len(t, c.Tail(3), 3)
	assert.Len(t, c.Tail(0), 5)
	assert.Len(t, c.Tail(100), 5)
	assert.Equal(t, "line-4", c.Tail(1)[0].Text)
}

func TestConsoleSubscribeReceivesLines(t *testing.T) {
	c := NewConsole(10)

	id, ch := c.Subscribe()
	defer c.Unsubscribe(id)

	c.Append("hello")

	line := <-ch
	require.Equal(t, "hello", line.Text)
	require.False(t, line.Timestamp.IsZero())
}

func TestConsoleUnsubscribeClosesChannel(t *testing.T) {
	c := NewConsole(10)

	id, ch := c.Subscribe()
	c.Unsubscribe(id)

	_, open := <-ch
	assert.False(t, open)

	// Appending after unsubscribe must not panic.
	c.Append("after")
}

func TestConsoleSlowSubscriberDropsLines(t *testing.T) {
	c := NewConsole(2000)

	id, ch := c.Subscribe()
	defer c.Unsubscribe(id)

	// Overflow the subscriber channel; Append must not block.
	for i := 0; i < 200; i++ {
		c.Append(fmt.Sprintf("line-%d", i))
	}

	assert.Equal(t, 200, c.Len())
	assert.LessOrEqual(t, len(ch), 64)
}

func TestConsoleClear(t *testing.T) {
	c := NewConsole(10)
	c.Append("one")
	c.Append("two")
	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Tail(10))
}
