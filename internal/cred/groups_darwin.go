package cred

// NGROUPS_MAX on macOS. getgroups(2) there reports only the default group
// access list, not one modified by setgroups, so the pre-resolution
// emulation cannot round-trip once a process holds more groups than this;
// the Switcher falls back to initgroups at switch time instead.
const nGroupsMax = 16
