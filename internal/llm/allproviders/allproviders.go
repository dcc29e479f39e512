// Package allproviders imports all LLM providers to register them.
// Import this package if you want all providers to be available:
//
//	import _ "github.com/orchd-dev/orchd/internal/llm/allproviders"
package allproviders

import (
	_ "github.com/orchd-dev/orchd/internal/llm/providers/anthropic"
	_ "github.com/orchd-dev/orchd/internal/llm/providers/local"
	_ "github.com/orchd-dev/orchd/internal/llm/providers/openai"
)
