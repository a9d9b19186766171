package agent

import (
	"context"
	"fmt"

	"github.com/chorus-run/chorus/internal/toolloop"
)

// LLMClassifier implements threadmgr.Classifier with a single, toolless
// call to the agent's own provider: given the running thread's state and
// the new message, the model answers INJECT or NEW_THREAD in one word.
// threadmgr.RouteInterjection already defaults to INJECT on any failure
// or ambiguous answer, so this type only needs to make the one call.
type LLMClassifier struct {
	Provider toolloop.Provider
	Model    string
}

const classifierPrompt = `You are routing an incoming chat message for an AI agent that is
already in the middle of running a task.

Current task summary: %s
Current step: %s
New message: %s

Decide whether the new message is a clarification, correction, or
additional detail for the SAME task (answer: INJECT), or an unrelated
request that deserves its own independent run (answer: NEW_THREAD).
Answer with exactly one word: INJECT or NEW_THREAD.`

func (c *LLMClassifier) Classify(ctx context.Context, summary, currentStep, newMessage string) (string, error) {
	prompt := fmt.Sprintf(classifierPrompt, summary, currentStep, newMessage)
	resp, err := c.Provider.Chat(ctx, []toolloop.Message{{Role: toolloop.RoleUser, Content: prompt}}, nil, c.Model)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
