package loop

import (
	"fmt"
	"strings"

	"github.com/sahaidachny/saha/internal/state"
)

func (l *Loop) implementationPrompt(st *state.ExecutionState) string {
	parts := []string{
		fmt.Sprintf("Implement task: %s", st.TaskID),
		fmt.Sprintf("Task path: %s", st.TaskFile),
		fmt.Sprintf("Iteration: %d", st.CurrentIteration),
		"",
	}

	if st.FixInfo != "" {
		parts = append(parts,
			"## Fix Mode",
			"",
			"Previous iteration failed. Focus on fixing these issues:",
			"",
			st.FixInfo,
			"",
			"Run tests after each fix to verify progress.",
		)
	} else {
		parts = append(parts,
			"## TDD Development Cycle",
			"",
			"Follow the TDD approach:",
			"",
			"### Phase 1: Interfaces",
			fmt.Sprintf("- Read API contracts at `%s/api-contracts/`", st.TaskFile),
			"- Define the data models and interfaces the contracts describe",
			"",
			"### Phase 2: Tests (Red)",
			fmt.Sprintf("- Read test specs at `%s/test-specs/`", st.TaskFile),
			"- Write tests based on the specs",
			"- Tests WILL fail initially (this is expected)",
			"",
			"### Phase 3: Implementation (Green)",
			"- Implement code to make all tests pass",
			"- Run tests after implementation to verify",
			"",
			"Read the task artifacts and follow TDD strictly.",
		)
	}

	return strings.Join(parts, "\n")
}

func (l *Loop) qaPrompt(st *state.ExecutionState) string {
	parts := []string{
		fmt.Sprintf("Verify the implementation for task: %s", st.TaskID),
		fmt.Sprintf("Task path: %s", st.TaskFile),
		"",
		"Check that:",
		"1. The implementation matches the task requirements",
		"2. All acceptance criteria are met",
		"3. Tests pass (if applicable)",
		"",
		`Return a JSON with: {"dod_achieved": true/false, "fix_info": "..." if not achieved}`,
	}
	return strings.Join(parts, "\n")
}

func (l *Loop) codeQualityPrompt(st *state.ExecutionState, impl *state.PhaseResult) string {
	parts := []string{
		fmt.Sprintf("Review code quality for task: %s", st.TaskID),
		fmt.Sprintf("Task path: %s", st.TaskFile),
		"",
	}

	if files := changedFiles(impl); len(files) > 0 {
		parts = append(parts, "Focus on these files:", "")
		for _, f := range files {
			parts = append(parts, "- "+f)
		}
		parts = append(parts, "")
	}

	parts = append(parts,
		"Run the quality tools (linter, type checker, complexity) on the changes.",
		"Pre-existing issues outside the changed lines are advisory, not blocking.",
		"",
		`Return JSON: {"quality_passed": true/false, "fix_info": "..." if not passed}`,
	)
	return strings.Join(parts, "\n")
}

func (l *Loop) managerPrompt(st *state.ExecutionState) string {
	parts := []string{
		fmt.Sprintf("Update task artifacts after iteration %d for: %s", st.CurrentIteration, st.TaskID),
		fmt.Sprintf("Task path: %s", st.TaskFile),
		"",
		"Your job:",
		fmt.Sprintf("1. Read the user stories at %s/user-stories/", st.TaskFile),
		fmt.Sprintf("2. Read the implementation plan at %s/implementation-plan/", st.TaskFile),
		"3. Based on what was implemented this iteration, update:",
		"   - Mark completed acceptance criteria with [x]",
		"   - Update user story status if all criteria are met",
		"   - Mark completed phases in the implementation plan",
		"",
		"Only mark items as done that are actually implemented.",
		"Be conservative - if unsure, leave it as pending.",
		"",
		`Return JSON: {"status": "success", "updates_made": [...], "items_completed": [...]}`,
	}
	return strings.Join(parts, "\n")
}

func (l *Loop) completionPrompt(st *state.ExecutionState) string {
	parts := []string{
		fmt.Sprintf("Verify if task is COMPLETE: %s", st.TaskID),
		fmt.Sprintf("Task path: %s", st.TaskFile),
		fmt.Sprintf("Iterations completed: %d", st.CurrentIteration),
		"",
		"CRITICAL: You must actually read and verify the task artifacts.",
		"",
		"Steps:",
		"1. Read task-description.md for the overall goals",
		"2. Read ALL user stories in user-stories/",
		"   - Count total acceptance criteria",
		"   - Count how many are marked [x] done",
		"3. Read implementation-plan/ phases",
		"   - Check if all phases are marked complete",
		"",
		"Task is COMPLETE only if:",
		"- ALL user stories have status 'Done'",
		"- ALL acceptance criteria are checked [x]",
		"- ALL implementation phases are complete",
		"",
		"Task is NOT complete if ANY work remains.",
		"",
		`Return JSON: {"task_complete": true/false, "remaining_items": [...], "reasoning": "..."}`,
	}
	return strings.Join(parts, "\n")
}

// changedFiles pulls the file lists the implementation phase reported.
func changedFiles(impl *state.PhaseResult) []string {
	if impl == nil || impl.StructuredOutput == nil {
		return nil
	}
	var out []string
	for _, key := range []string{"files_changed", "files_added"} {
		switch v := impl.StructuredOutput[key].(type) {
		case []string:
			out = append(out, v...)
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}
