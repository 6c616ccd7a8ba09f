// internal/agents/prompts.go
package agents

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/leoforge/internal/refinement"
)

const fence = "```"

// leoCoreRules is shared by every system prompt that produces or judges code.
const leoCoreRules = `LEO SYNTAX RULES:
1. Program declaration: program project_name.aleo { ... }
2. Records MUST have an owner field: record Name { owner: address, field: type }
3. Mappings can ONLY be read or written inside async functions.
4. Use the async transition + async function pattern for mapping operations.
5. Transitions: transition name(input: type) -> output_type { ... }
6. Async transitions: async transition name() -> Future { ... }
7. Mapping operations: Mapping::get(), Mapping::set(), Mapping::get_or_use()
8. Context: self.caller, self.signer; block.height only inside async functions.
9. Types: u8-u128, i8-i128, address, bool, field, scalar, group, [T; N]
10. Every integer literal carries a type suffix (0u64, 1u8).
11. Loop bounds must be compile-time constants.`

const mappingPattern = `MAPPING PATTERN:
` + fence + `leo
mapping balances: address => u64;

async transition transfer_public(public to: address, public amount: u64) -> Future {
    return finalize_transfer_public(self.caller, to, amount);
}

async function finalize_transfer_public(from: address, to: address, amount: u64) {
    let from_balance: u64 = Mapping::get(balances, from);
    assert(from_balance >= amount);
    let to_balance: u64 = Mapping::get_or_use(balances, to, 0u64);
    Mapping::set(balances, from, from_balance - amount);
    Mapping::set(balances, to, to_balance + amount);
}
` + fence

const recordPattern = `RECORD PATTERN:
` + fence + `leo
record Token {
    owner: address,
    amount: u64,
}

transition transfer_private(token: Token, to: address, amount: u64) -> (Token, Token) {
    assert(amount <= token.amount);
    let sent: Token = Token { owner: to, amount: amount };
    let change: Token = Token { owner: token.owner, amount: token.amount - amount };
    return (sent, change);
}
` + fence

const commonFixes = `COMMON FIXES:
- "can only be used in an async function": move mapping operations into the async function and call it from an async transition.
- ETYC0372019: add owner: address to every record.
- ETYC0372034: block.height is only available inside async functions.
- ETYC0372106: async functions do not return values.
- ETYC0372057: only transitions take or return records.
- ETYC0372120: operands must share a type; cast explicitly (value as u64).
- Missing type suffix on a literal: write 0u64, not 0.
- Dynamic loop bounds: loop to a constant and guard with an if inside the body.`

func architectSystemPrompt(adminAddress string) string {
	return fmt.Sprintf(`You are an expert Leo/Aleo blockchain architect. Analyze a project request and produce a design a code generator can follow.

%s

Design with these responsibilities:
1. Classify the project (token, nft, defi, voting, game, identity, custom).
2. List every feature the program must implement.
3. Define records, structs and mappings.
4. Define each transition with a clear signature.
5. Call out security considerations.
6. Decide whether admin-only operations are required. The admin address is %s.

Respond with JSON only:
{
  "project_name": "lowercase_underscore_name",
  "project_type": "token",
  "description": "One paragraph summary.",
  "features": ["..."],
  "technical_requirements": ["..."],
  "data_structures": {"Name": "definition"},
  "transitions": {"name": "signature"},
  "security_considerations": ["..."],
  "admin_features": ["..."],
  "requires_admin": false
}`, leoCoreRules, adminAddress)
}

func architectUserPrompt(q refinement.Query) string {
	category := q.Category
	if strings.TrimSpace(category) == "" {
		category = "Auto-detect"
	}
	constraints := "None specified"
	if len(q.Constraints) > 0 {
		constraints = strings.Join(q.Constraints, ", ")
	}
	return fmt.Sprintf(`USER REQUEST:
%s

Project Type Hint: %s
Constraints: %s

Identify the core functionality, every data structure and every transition, then return the design JSON.`, q.Text, category, constraints)
}

func generatorSystemPrompt(adminAddress string) string {
	return fmt.Sprintf(`You are an expert Leo code generator for the Aleo blockchain. Generate complete, compilable Leo programs.

%s

%s

%s

SECURITY PATTERNS:
- Admin check: assert_eq(self.caller, %s);
- Underflow check: assert(balance >= amount);
- Positive amounts: assert(amount > 0u64);
- Use records for private ownership data and mappings for public aggregates.

Respond with JSON only: {"code": "<the complete Leo program>"}`, leoCoreRules, mappingPattern, recordPattern, adminAddress)
}

func generateUserPrompt(d refinement.Design) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate complete Leo code for the following project.\n\n")
	writeDesign(&b, d)
	b.WriteString("\nImplement every feature. The program must compile with `leo build`.\n")
	return b.String()
}

func repairUserPrompt(d refinement.Design, source refinement.SourceText, diag refinement.Diagnostics) string {
	var b strings.Builder
	b.WriteString("Fix the compilation errors in this Leo code.\n\nCURRENT CODE:\n")
	b.WriteString(fence + "leo\n")
	b.WriteString(string(source))
	b.WriteString("\n" + fence + "\n\nCOMPILATION ERRORS:\n")
	b.WriteString(diag.String())
	b.WriteString("\n")
	if len(diag.Details) > 0 {
		b.WriteString("\nPARSED ERRORS:\n")
		for _, detail := range diag.Details {
			fmt.Fprintf(&b, "- %s", detail.Message)
			if detail.Location != "" {
				fmt.Fprintf(&b, " (at %s)", detail.Location)
			}
			if detail.Suggestion != "" {
				fmt.Fprintf(&b, " help: %s", detail.Suggestion)
			}
			b.WriteString("\n")
		}
	}
	fmt.Fprintf(&b, "\nORIGINAL REQUIREMENTS:\n- Project: %s\n- Features: %s\n\n%s\n\n",
		d.ProjectName, strings.Join(d.Features, ", "), commonFixes)
	b.WriteString("Fix every error while keeping the intended functionality. Return the full corrected program.\n")
	return b.String()
}

func evaluatorSystemPrompt(adminAddress string) string {
	return fmt.Sprintf(`Evaluate Leo code for correctness, privacy and completeness.

VALIDATION CHECKLIST:
1. Syntax: proper types, literals with suffixes, operators.
2. Records: all have an owner field and are consumed correctly.
3. Transitions: correct signatures and public/private modifiers.
4. Features: every requirement is implemented.
5. Security: overflow checks, access control, safe operations.
6. Async: mappings only in async functions, proper Future returns.

SCORING (0-100):
- 90-100: production ready
- 70-89: good, some improvements needed
- 50-69: functional but needs significant work
- 0-49: major issues

Admin address for admin features: %s

Respond with JSON only:
{
  "score": 0,
  "is_complete": false,
  "has_errors": false,
  "missing_features": [],
  "improvements": [],
  "security_issues": [],
  "privacy_issues": [],
  "optimization_suggestions": []
}`, adminAddress)
}

func evaluateUserPrompt(source refinement.SourceText, d refinement.Design) string {
	var b strings.Builder
	b.WriteString("Evaluate this Leo code against the requirements.\n\nREQUIREMENTS:\n")
	writeDesign(&b, d)
	b.WriteString("\nCODE TO EVALUATE:\n" + fence + "leo\n")
	b.WriteString(string(source))
	b.WriteString("\n" + fence + "\n")
	return b.String()
}

func writeDesign(b *strings.Builder, d refinement.Design) {
	fmt.Fprintf(b, "PROJECT: %s\nTYPE: %s\nDESCRIPTION: %s\n", d.ProjectName, d.Category, d.Description)
	writeList(b, "FEATURES", d.Features)
	writeList(b, "DATA STRUCTURES", d.DataStructures)
	writeList(b, "TRANSITIONS", d.Transitions)
	writeList(b, "TECHNICAL REQUIREMENTS", d.TechnicalRequirements)
	writeList(b, "SECURITY CONSIDERATIONS", d.SecurityNotes)
	if d.RequiresAdmin || len(d.AdminFeatures) > 0 {
		writeList(b, "ADMIN FEATURES", d.AdminFeatures)
		fmt.Fprintf(b, "REQUIRES ADMIN: %t\n", d.RequiresAdmin)
	}
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}
