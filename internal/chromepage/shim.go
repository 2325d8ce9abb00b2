package chromepage

import (
	"encoding/json"
	"fmt"
)

// DefaultBinding is the CDP runtime binding the shim reports through.
const DefaultBinding = "__timelineBridge"

const shimTemplate = `(() => {
  if (window.timeline && window.timeline.__bridge) return;
  const binding = %[1]s;
  const pending = new Map();
  let seq = 0;
  const send = (method, args, id) => {
    const fn = window[binding];
    if (typeof fn !== "function") return;
    fn(JSON.stringify({ id: id || "", method, args }));
  };
  window[binding + "Resolve"] = (id, value) => {
    const resolve = pending.get(id);
    if (!resolve) return;
    pending.delete(id);
    resolve(value);
  };
  window.timeline = {
    __bridge: true,
    qt_log: (level, text) => send("qt_log", [String(level), String(text)]),
    page_ready: () => send("page_ready", []),
    invoke: (method, ...args) => {
      const id = "c" + (++seq);
      return new Promise((resolve) => {
        pending.set(id, resolve);
        send("invoke", [String(method), args], id);
      });
    },
  };
})();`

// shimScript returns the script installed on every new document. It
// defines window.timeline with qt_log, page_ready and invoke.
func shimScript(binding string) string {
	name, _ := json.Marshal(binding)
	return fmt.Sprintf(shimTemplate, name)
}

// resolveScript answers an invoke promise on the surface.
func resolveScript(binding, id string, value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	fn, _ := json.Marshal(binding + "Resolve")
	key, _ := json.Marshal(id)
	return fmt.Sprintf("window[%s]?.(%s, %s)", fn, key, data), nil
}
