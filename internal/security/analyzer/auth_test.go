package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianshen/larashield/internal/security"
)

const userController = `<?php

namespace App\Http\Controllers;

use Illuminate\Http\Request;

class UserController extends Controller
{
    public function store(Request $request)
    {
        return response()->json([], 201);
    }
}
`

const unprotectedUsersRoute = `<?php

use App\Http\Controllers\UserController;
use Illuminate\Support\Facades\Route;

Route::post('/users', [UserController::class, 'store']);
`

func TestAuthenticationFlagsUnprotectedPost(t *testing.T) {
	dir := writeProject(t, map[string]string{"routes/web.php": unprotectedUsersRoute})

	res := runAnalyzer(t, NewAuthentication(testOptions(t, nil)), dir)
	require.Equal(t, security.OutcomeFailed, res.Outcome)
	require.Len(t, res.Issues, 1)

	is := res.Issues[0]
	assert.Equal(t, security.SeverityHigh, is.Severity)
	assert.Equal(t, "POST", is.Metadata.String("method"))
	assert.Equal(t, "unprotected_route", is.Metadata.String("issue_type"))
	assert.Equal(t, "routes/web.php", is.Location.File)
	assert.Equal(t, 6, is.Location.Line)
}

func TestAuthenticationAllowsPublicLogin(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"routes/web.php": `<?php

use Illuminate\Support\Facades\Route;

Route::post('/login', [AuthController::class, 'login']);
Route::get('/users', [UserController::class, 'index']);
`,
	})

	res := runAnalyzer(t, NewAuthentication(testOptions(t, nil)), dir)
	assert.Equal(t, security.OutcomePassed, res.Outcome)
	assert.Empty(t, res.Issues)
}

func TestAuthenticationSkipsUnparsableFiles(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"routes/broken.php": `<?php

Route::post('/broken', [BrokenController::class, 'store'
`,
		"routes/web.php": unprotectedUsersRoute,
	})

	res := runAnalyzer(t, NewAuthentication(testOptions(t, nil)), dir)
	assert.Equal(t, security.OutcomeFailed, res.Outcome)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, "routes/web.php", res.Issues[0].Location.File)
	assert.Equal(t, "/users", res.Issues[0].Metadata.String("uri"))
}

func TestAuthenticationRouteCoversControllerAction(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"routes/web.php": `<?php

use App\Http\Controllers\PostController;
use Illuminate\Support\Facades\Route;

Route::delete('/posts/{id}', [PostController::class, 'destroy'])->middleware('auth');
`,
		"app/Http/Controllers/PostController.php": `<?php

namespace App\Http\Controllers;

use App\Models\Post;

class PostController extends Controller
{
    public function destroy($id)
    {
        Post::findOrFail($id)->delete();

        return redirect('/posts');
    }
}
`,
	})

	res := runAnalyzer(t, NewAuthentication(testOptions(t, nil)), dir)
	assert.Equal(t, security.OutcomePassed, res.Outcome)
	assert.Empty(t, res.Issues)
}

func TestAuthenticationGroupMiddleware(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"routes/api.php": `<?php

use Illuminate\Support\Facades\Route;

Route::middleware(['auth:sanctum'])->group(function () {
    Route::post('/orders', [OrderController::class, 'store']);
    Route::put('/orders/{order}', [OrderController::class, 'update']);
});

Route::patch('/profile', [ProfileController::class, 'update']);
`,
	})

	res := runAnalyzer(t, NewAuthentication(testOptions(t, nil)), dir)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, "PATCH", res.Issues[0].Metadata.String("method"))
	assert.Equal(t, "/profile", res.Issues[0].Metadata.String("uri"))
}

func TestAuthenticationCustomPublicRoutes(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"routes/web.php": `<?php

Route::post('/newsletter/subscribe', [NewsletterController::class, 'store']);
`,
	})
	opts := testOptions(t, map[string]any{
		"security.authentication.public_routes": []any{"/newsletter"},
	})

	res := runAnalyzer(t, NewAuthentication(opts), dir)
	assert.Equal(t, security.OutcomePassed, res.Outcome)
}

func TestAuthenticationFlagsUnmappedSensitiveAction(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"app/Http/Controllers/UserController.php": userController,
	})

	res := runAnalyzer(t, NewAuthentication(testOptions(t, nil)), dir)
	issues := ofType(res.Issues, "unprotected_controller_action")
	require.Len(t, issues, 1)
	assert.Equal(t, security.SeverityHigh, issues[0].Severity)
	assert.Equal(t, "UserController", issues[0].Metadata.String("controller"))
	assert.Equal(t, "store", issues[0].Metadata.String("method"))
	assert.Equal(t, 9, issues[0].Location.Line)
}

func TestAuthenticationControllerMiddleware(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"app/Http/Controllers/UserController.php": `<?php

namespace App\Http\Controllers;

class UserController extends Controller
{
    public function __construct()
    {
        $this->middleware('auth');
    }

    public function store()
    {
        return auth()->user()->name;
    }
}
`,
	})

	res := runAnalyzer(t, NewAuthentication(testOptions(t, nil)), dir)
	assert.Equal(t, security.OutcomePassed, res.Outcome)
	assert.Empty(t, res.Issues)
}

func TestAuthenticationNullableDereference(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"app/Http/Controllers/ProfileController.php": `<?php

namespace App\Http\Controllers;

use Illuminate\Support\Facades\Auth;

class ProfileController extends Controller
{
    public function show()
    {
        return view('profile', ['name' => auth()->user()->name]);
    }

    public function summary()
    {
        $user = Auth::user();

        return $user->email;
    }

    public function checked()
    {
        if (auth()->check()) {
            return auth()->user()->name;
        }

        return null;
    }

    public function nullsafe()
    {
        return auth()->user()?->name;
    }
}
`,
	})

	res := runAnalyzer(t, NewAuthentication(testOptions(t, nil)), dir)
	issues := ofType(res.Issues, "nullable_auth_dereference")
	require.Len(t, issues, 2)
	assert.Equal(t, "show", issues[0].Metadata.String("method"))
	assert.Equal(t, "auth()->user()", issues[0].Metadata.String("expression"))
	assert.Equal(t, security.SeverityMedium, issues[0].Severity)
	assert.Equal(t, "summary", issues[1].Metadata.String("method"))
	assert.Equal(t, "$user", issues[1].Metadata.String("expression"))
}

func TestAuthenticationGuardConditions(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"app/Http/Controllers/DashboardController.php": `<?php

namespace App\Http\Controllers;

use App\Models\User;
use Illuminate\Support\Facades\Auth as Guard;

class DashboardController extends Controller
{
    public function stats()
    {
        $userCount = User::count();
        if ($userCount > 0) {
            return auth()->user()->name;
        }

        return null;
    }

    public function guarded()
    {
        $user = auth()->user();
        if ($user) {
            return $user->email;
        }

        return null;
    }

    public function aliasedGuard()
    {
        if (Guard::guest()) {
            abort(401);
        }

        return Guard::user()->name;
    }

    public function aliasedLookup()
    {
        return Guard::user()->email;
    }
}
`,
	})

	res := runAnalyzer(t, NewAuthentication(testOptions(t, nil)), dir)
	issues := ofType(res.Issues, "nullable_auth_dereference")
	require.Len(t, issues, 2)
	assert.Equal(t, "stats", issues[0].Metadata.String("method"))
	assert.Equal(t, "auth()->user()", issues[0].Metadata.String("expression"))
	assert.Equal(t, "aliasedLookup", issues[1].Metadata.String("method"))
	assert.Equal(t, "Guard::user()", issues[1].Metadata.String("expression"))
}

func TestAuthenticationNullableDereferenceSkipsAuthenticatedRoutes(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"routes/web.php": `<?php

Route::get('/profile', [ProfileController::class, 'show'])->middleware('auth');
`,
		"app/Http/Controllers/ProfileController.php": `<?php

namespace App\Http\Controllers;

class ProfileController extends Controller
{
    public function show()
    {
        return auth()->user()->name;
    }
}
`,
	})

	res := runAnalyzer(t, NewAuthentication(testOptions(t, nil)), dir)
	assert.Empty(t, res.Issues)
}

func TestAuthenticationIgnoreComment(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"routes/web.php": `<?php

// larashield:ignore signed webhook payloads
Route::post('/billing/events', [BillingController::class, 'handle']);
`,
	})

	res := runAnalyzer(t, NewAuthentication(testOptions(t, nil)), dir)
	assert.Empty(t, res.Issues)
}

func TestAuthenticationSkipsWithoutRoutes(t *testing.T) {
	a := NewAuthentication(testOptions(t, nil))
	res := runAnalyzer(t, a, t.TempDir())
	assert.Equal(t, security.OutcomeSkipped, res.Outcome)
	assert.Equal(t, a.SkipReason(), res.Message)
}

func TestAuthenticationCancelled(t *testing.T) {
	dir := writeProject(t, map[string]string{"routes/web.php": "<?php\n"})
	a := NewAuthentication(testOptions(t, nil))
	a.SetBasePath(dir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Analyze(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
