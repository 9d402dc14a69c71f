package frontier

// Keys names the Redis keys that hold one spider's crawl state.
type Keys struct {
	Queue       string
	Sequence    string
	DupeFilter  string
	GuildIDs    string
	RestartLock string
}

// KeysFor derives the key set for a spider name.
func KeysFor(spider string) Keys {
	return Keys{
		Queue:       spider + ":requests",
		Sequence:    spider + ":requests:seq",
		DupeFilter:  spider + ":dupefilter",
		GuildIDs:    spider + ":guild_id",
		RestartLock: spider + ":restart:lock",
	}
}

// All returns every data key cleared by a restart. The lock key is excluded.
func (k Keys) All() []string {
	return []string{k.Queue, k.Sequence, k.DupeFilter, k.GuildIDs}
}
