package jack

// LiveContexts returns how many handler contexts are registered, and how
// many have been allocated and released in total.
func LiveContexts() (live int, allocated, released uint64) {
	st := HandlerContexts()
	return st.Live, st.Allocated, st.Released
}
