// Package memory implements the conversational memory engine.
//
// For every incoming message the Manager loads the
// conversation document, performs exactly one branch and persists the result:
//
//   - Update: facts volunteered by the user ("my name is ...") are detected,
//     canonicalized and stored in identity, preferences or facts.
//   - Task: a multi-turn slot-filling workflow (see package task) is started,
//     continued or reported on.
//   - Recall: questions about stored facts are answered from state with fixed
//     templates. Nothing is ever made up.
//   - Chat: everything else is delegated to a text generator.
//
// Architecture:
//   - StateStore: document persistence (file by default, redis for sharing)
//   - SlotIndex: embedding-based matching of slot names (package index)
//   - FactIndex: semantic recall over stored facts (chromem-go)
//   - Transcript: message history used for chat context and summaries
//
// The detector (DetectUpdates, DetectRecalls) and the canonical key table are
// pure functions and can be used on their own.
package memory
