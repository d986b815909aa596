/*
Package operations runs deployment steps as typed, versioned operations and records a report for
every execution.

An Operation performs at most one side effect, such as sending a transaction or waiting for a
receipt. Its input and output must survive a JSON round trip so that reports can be written to
disk and replayed. A Sequence groups operations and is reported together with its children.

	op := operations.NewOperation(
		"timelock-deploy", semver.MustParse("1.0.0"), "Deploys a TimeLockedWithdrawal",
		func(b operations.Bundle, deps Deps, in DeployInput) (DeployOutput, error) { ... },
	)

	b := operations.NewBundle(ctx, lggr, operations.NewMemoryReporter())
	report, err := operations.ExecuteOperation(b, op, deps, input)

ExecuteOperation skips an operation when the reporter already holds a successful report for the
same definition and input, and returns that report instead. Retries are opt in with WithRetry,
and NewUnrecoverableError stops them early.
*/
package operations
