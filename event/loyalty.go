// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package event

const (
	CustomerCreatedEventType EventType = "loyalty.customer.created"
	StampMutatedEventType    EventType = "loyalty.stamp.mutated"
	DesignUpdatedEventType   EventType = "loyalty.design.updated"
	DesignActivatedEventType EventType = "loyalty.design.activated"
	SyncCompletedEventType   EventType = "sync.completed"
)

// CustomerCreatedEvent is published after a customer record is persisted
type CustomerCreatedEvent struct {
	CustomerID string
}

// StampMutatedEvent is published after a customer's stamp count changes.
// PreviousCount is the count before the mutation.
type StampMutatedEvent struct {
	CustomerID    string
	PreviousCount int
}

// DesignUpdatedEvent is published after a design's content changes
type DesignUpdatedEvent struct {
	DesignID string
}

// DesignActivatedEvent is published after a design becomes the active design
// for its business
type DesignActivatedEvent struct {
	DesignID string
}

// SyncCompletedEvent reports the per-platform outcome of a sync run
type SyncCompletedEvent struct {
	Trigger       EventType
	SubjectID     string
	PassKit       string
	WalletObjects string
}
