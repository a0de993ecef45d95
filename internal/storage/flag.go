package storage

// Flag — одноразовый флаг поверх KV: поднимается один раз и гаснет после первого чтения
type Flag struct {
	kv  KV
	key string
}

func NewFlag(kv KV, key string) *Flag {
	return &Flag{kv: kv, key: key}
}

// Raise поднимает флаг
func (f *Flag) Raise() error {
	return f.kv.Set(f.key, "1")
}

// Take возвращает, был ли флаг поднят, и сразу его сбрасывает
func (f *Flag) Take() (bool, error) {
	_, ok, err := f.kv.Get(f.key)
	if err != nil || !ok {
		return false, err
	}
	return true, f.kv.Delete(f.key)
}
