package timber

import "sync"

// Actors is the per-session store of toggles, debug flags, languages and in-flight scan markers.
type Actors struct {
	defaultEnabled bool
	defaultLang    string

	mu       sync.Mutex
	enabled  map[string]bool
	debug    map[string]bool
	lang     map[string]string
	inflight map[string]struct{}
}

func NewActors(defaultEnabled bool, defaultLang string) *Actors {
	if defaultLang == "" {
		defaultLang = "en"
	}
	return &Actors{
		defaultEnabled: defaultEnabled,
		defaultLang:    defaultLang,
		enabled:        map[string]bool{},
		debug:          map[string]bool{},
		lang:           map[string]string{},
		inflight:       map[string]struct{}{},
	}
}

func (a *Actors) Enabled(actor string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if v, ok := a.enabled[actor]; ok {
		return v
	}
	return a.defaultEnabled
}

func (a *Actors) SetEnabled(actor string, v bool) {
	a.mu.Lock()
	a.enabled[actor] = v
	a.mu.Unlock()
}

// Toggle flips the actor's timber state and returns the new one.
func (a *Actors) Toggle(actor string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.enabled[actor]
	if !ok {
		v = a.defaultEnabled
	}
	a.enabled[actor] = !v
	return !v
}

func (a *Actors) Debug(actor string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.debug[actor]
}

func (a *Actors) ToggleDebug(actor string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	v := !a.debug[actor]
	a.debug[actor] = v
	return v
}

func (a *Actors) Language(actor string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if l, ok := a.lang[actor]; ok {
		return l
	}
	return a.defaultLang
}

func (a *Actors) SetLanguage(actor, lang string) {
	a.mu.Lock()
	a.lang[actor] = lang
	a.mu.Unlock()
}

// Acquire sets the actor's in-flight marker. It fails if one is already set. The returned release
// func may be called any number of times from any goroutine; only the first call clears the marker.
func (a *Actors) Acquire(actor string) (release func(), ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, busy := a.inflight[actor]; busy {
		return nil, false
	}
	a.inflight[actor] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.inflight, actor)
			a.mu.Unlock()
		})
	}, true
}

func (a *Actors) InFlight(actor string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.inflight[actor]
	return ok
}

// Forget drops the actor's session state. An in-flight scan keeps its marker until it releases.
func (a *Actors) Forget(actor string) {
	a.mu.Lock()
	delete(a.enabled, actor)
	delete(a.debug, actor)
	delete(a.lang, actor)
	a.mu.Unlock()
}
