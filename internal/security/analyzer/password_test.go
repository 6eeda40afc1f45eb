package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianshen/larashield/internal/security"
)

func registerController(body string) string {
	return `<?php

namespace App\Http\Controllers;

use App\Models\User;
use Illuminate\Http\Request;
use Illuminate\Support\Facades\Hash;

class RegisterController extends Controller
{
    public function store(Request $request)
    {
` + body + `
    }
}
`
}

func TestPasswordSecurityHashedAssignment(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"app/Http/Controllers/RegisterController.php": registerController(`
        $user = new User();
        $user->password = Hash::make($request->password);
        $user->save();`),
	})

	res := runAnalyzer(t, NewPasswordSecurity(testOptions(t, nil)), dir)
	assert.Equal(t, security.OutcomePassed, res.Outcome)
	assert.Empty(t, res.Issues)
}

func TestPasswordSecurityPlainTextAssignment(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"app/Http/Controllers/RegisterController.php": registerController(`
        $user = new User();
        $user->password = $request->password;
        $user->save();`),
	})

	res := runAnalyzer(t, NewPasswordSecurity(testOptions(t, nil)), dir)
	require.Len(t, res.Issues, 1)
	is := res.Issues[0]
	assert.Equal(t, security.SeverityMedium, is.Severity)
	assert.Equal(t, "plain_text_password", is.Metadata.String("issue_type"))
	assert.Equal(t, "password", is.Metadata.String("field"))
	assert.Equal(t, "unsafe", is.Metadata.String("origin"))
}

func TestPasswordSecurityBcryptRoundsConfig(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"config/hashing.php": `<?php

return [
    'driver' => 'bcrypt',

    'bcrypt' => [
        'rounds' => env('BCRYPT_ROUNDS', 8),
    ],
];
`,
	})

	res := runAnalyzer(t, NewPasswordSecurity(testOptions(t, nil)), dir)
	require.Len(t, res.Issues, 1)
	is := res.Issues[0]
	assert.Equal(t, security.SeverityCritical, is.Severity)
	assert.Contains(t, is.Message, "Bcrypt rounds")
	rounds, ok := is.Metadata.Get("rounds")
	require.True(t, ok)
	assert.Equal(t, 8, rounds)
	assert.Equal(t, "config/hashing.php", is.Location.File)
	assert.Equal(t, 7, is.Location.Line)
	assert.Equal(t, security.OutcomeFailed, res.Outcome)
}

func TestPasswordSecurityConfigThresholds(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"config/hashing.php": `<?php

return [
    'driver' => env('HASH_DRIVER', 'md5'),
    'bcrypt' => ['rounds' => 11],
    'argon' => [
        'memory' => 1024,
        'time' => 1,
        'threads' => 1,
    ],
];
`,
	})

	res := runAnalyzer(t, NewPasswordSecurity(testOptions(t, nil)), dir)
	require.Len(t, res.Issues, 4)
	assert.Equal(t, "weak_hash_driver", res.Issues[0].Metadata.String("issue_type"))
	assert.Equal(t, security.SeverityCritical, res.Issues[0].Severity)
	assert.Equal(t, "weak_bcrypt_rounds", res.Issues[1].Metadata.String("issue_type"))
	assert.Equal(t, security.SeverityLow, res.Issues[1].Severity)
	assert.Equal(t, "weak_argon_memory", res.Issues[2].Metadata.String("issue_type"))
	assert.Equal(t, security.SeverityHigh, res.Issues[2].Severity)
	assert.Equal(t, "weak_argon_time", res.Issues[3].Metadata.String("issue_type"))
	assert.Equal(t, security.SeverityMedium, res.Issues[3].Severity)
}

func TestPasswordSecurityThresholdsFromSettings(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"config/hashing.php": "<?php\n\nreturn ['bcrypt' => ['rounds' => 10]];\n",
	})
	opts := testOptions(t, map[string]any{
		"security.password.bcrypt_min_rounds":         8,
		"security.password.bcrypt_recommended_rounds": 10,
	})

	res := runAnalyzer(t, NewPasswordSecurity(opts), dir)
	assert.Empty(t, res.Issues)
}

func TestPasswordSecurityWeakHashing(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"app/Http/Controllers/RegisterController.php": registerController(`
        $user = new User();
        $user->password = md5($request->password);
        $legacy = hash('sha1', $request->input('password'));
        $checksum = md5($request->file('avatar')->path());
        $user->save();`),
	})

	res := runAnalyzer(t, NewPasswordSecurity(testOptions(t, nil)), dir)
	weak := ofType(res.Issues, "weak_password_hash")
	require.Len(t, weak, 2)
	assert.Equal(t, "md5", weak[0].Metadata.String("algorithm"))
	assert.Equal(t, "sha1", weak[1].Metadata.String("algorithm"))
	assert.Equal(t, security.SeverityHigh, weak[0].Severity)
	assert.Empty(t, ofType(res.Issues, "plain_text_password"))
}

func TestPasswordSecurityWeakHashRounds(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"app/Http/Controllers/RegisterController.php": registerController(`
        $user = User::create([
            'email' => $request->validated('email'),
            'password' => Hash::make($request->password, ['rounds' => 4]),
        ]);`),
	})

	res := runAnalyzer(t, NewPasswordSecurity(testOptions(t, nil)), dir)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, "weak_hash_rounds", res.Issues[0].Metadata.String("issue_type"))
	rounds, _ := res.Issues[0].Metadata.Get("rounds")
	assert.Equal(t, 4, rounds)
}

func TestPasswordSecurityResolvesAliasedHashFacade(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"app/Http/Controllers/RegisterController.php": `<?php

namespace App\Http\Controllers;

use App\Models\User;
use Illuminate\Http\Request;
use Illuminate\Support\Facades\Hash as Hasher;

class RegisterController extends Controller
{
    public function store(Request $request)
    {
        $user = new User();
        $user->password = Hasher::make($request->password);
        $user->save();
    }

    public function reset(Request $request)
    {
        $request->user()->forceFill([
            'password' => Hasher::make($request->password, ['rounds' => 4]),
        ])->save();
    }
}
`,
	})

	res := runAnalyzer(t, NewPasswordSecurity(testOptions(t, nil)), dir)
	assert.Empty(t, ofType(res.Issues, "plain_text_password"))
	require.Len(t, ofType(res.Issues, "weak_hash_rounds"), 1)
	assert.Equal(t, 21, ofType(res.Issues, "weak_hash_rounds")[0].Location.Line)
}

func TestPasswordSecurityPayloads(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"app/Http/Controllers/RegisterController.php": registerController(`
        User::create([
            'email' => $request->email,
            'password' => $request->input('password'),
        ]);
        User::create([
            'email' => $request->email,
            'password' => $this->generatePassword(),
        ]);`),
	})

	res := runAnalyzer(t, NewPasswordSecurity(testOptions(t, nil)), dir)
	require.Len(t, res.Issues, 1)
	is := res.Issues[0]
	assert.Equal(t, "plain_text_password", is.Metadata.String("issue_type"))
	assert.Equal(t, "create", is.Metadata.String("method"))
	assert.Equal(t, security.SeverityMedium, is.Severity)
}

func TestPasswordSecurityIgnoresRelatedFields(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"app/Http/Controllers/RegisterController.php": registerController(`
        $user = $request->user();
        $user->password_changed_at = now();
        $user->password_confirmation = $request->password_confirmation;
        // larashield:ignore legacy import hashes on first login
        $user->password = $request->legacy_password;
        $user->save();`),
	})

	res := runAnalyzer(t, NewPasswordSecurity(testOptions(t, nil)), dir)
	assert.Empty(t, res.Issues)
}

func TestIsPasswordField(t *testing.T) {
	for name, want := range map[string]bool{
		"password":              true,
		"user_password":         true,
		"newPassword":           true,
		"pwd":                   true,
		"password_confirmation": false,
		"password_reset_token":  false,
		"password_changed_at":   false,
		"passwordless":          false,
		"email":                 false,
	} {
		assert.Equal(t, want, isPasswordField(name), name)
	}
}
