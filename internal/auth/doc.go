package auth

// Package auth drives the PAM conversation for one login attempt.
//
// Design goals:
//   - One transaction per attempt, explicitly ended on every exit path.
//   - A single non-interactive exchange: the module stack gets exactly one
//     username and one secret. Any prompt beyond that fails the attempt.
//   - Identity resolution (uid/gid/home/shell/groups) comes from the local
//     user database, never from the submitted credentials.
