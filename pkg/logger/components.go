// Copyright 2025 The shiki authors
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

package logger

// Component names for logging.
const (
	// ComponentAgent is the top-level agent lifecycle component.
	ComponentAgent = "agent"
	// ComponentServer is the HTTP server component.
	ComponentServer = "server"
	// ComponentController is the service controller component.
	ComponentController = "controller"
	// ComponentACL is the access control component.
	ComponentACL = "acl"
	// ComponentBackend is the service backend component.
	ComponentBackend = "backend"
	// ComponentRetry is the retry engine component.
	ComponentRetry = "retry"
	// ComponentConfig is the configuration manager component.
	ComponentConfig = "config"
	// ComponentClient is the notify client component.
	ComponentClient = "client"
	// ComponentFSM is the agent state machine component.
	ComponentFSM = "fsm"
)
